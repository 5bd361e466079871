package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

func msgs(texts ...string) []store.Message {
	out := make([]store.Message, len(texts))
	for i, t := range texts {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		out[i] = store.Message{Role: role, Text: t}
	}
	return out
}

func TestRuleExtractorParsesNameAndAge(t *testing.T) {
	r := NewRuleExtractor(200)
	result, err := r.Extract(context.Background(), msgs("我叫小明，我今年5岁"), "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.ProfileDelta.Name == nil || *result.ProfileDelta.Name != "小明" {
		t.Errorf("expected name 小明, got %+v", result.ProfileDelta.Name)
	}
	if result.ProfileDelta.Age == nil || *result.ProfileDelta.Age != 5 {
		t.Errorf("expected age 5, got %+v", result.ProfileDelta.Age)
	}
}

func TestRuleExtractorProducesLikeFact(t *testing.T) {
	r := NewRuleExtractor(200)
	result, err := r.Extract(context.Background(), msgs("我喜欢恐龙"), "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %d: %+v", len(result.Facts), result.Facts)
	}
	f := result.Facts[0]
	if f.Predicate != "喜欢" || f.Object != "恐龙" {
		t.Errorf("unexpected fact: %+v", f)
	}
}

func TestRuleExtractorFactSubjectDefaultsToMatchedName(t *testing.T) {
	r := NewRuleExtractor(200)
	result, err := r.Extract(context.Background(), msgs("我叫小明，我喜欢恐龙"), "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Facts) != 1 {
		t.Fatalf("expected 1 fact, got %d: %+v", len(result.Facts), result.Facts)
	}
	f := result.Facts[0]
	if f.Subject != "小明" || f.Predicate != "喜欢" || f.Object != "恐龙" {
		t.Errorf("expected fact (小明, 喜欢, 恐龙), got %+v", f)
	}
	found := false
	for _, tag := range result.ProfileDelta.AddTags {
		if tag == "喜欢 恐龙" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected tag \"喜欢 恐龙\" in profile delta, got %+v", result.ProfileDelta.AddTags)
	}
}

func TestRuleExtractorImportanceRisesWithSignal(t *testing.T) {
	r := NewRuleExtractor(200)
	plain, _ := r.Extract(context.Background(), msgs("今天天气不错"), "u1")
	rich, _ := r.Extract(context.Background(), msgs("我叫小明，我喜欢恐龙，我很开心"), "u1")
	if rich.Importance <= plain.Importance {
		t.Errorf("expected richer dialogue to score higher importance, got plain=%v rich=%v", plain.Importance, rich.Importance)
	}
}

func TestRuleExtractorClassifiesEmotion(t *testing.T) {
	r := NewRuleExtractor(200)
	result, err := r.Extract(context.Background(), msgs("我今天很害怕"), "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Emotion != store.EmotionScared {
		t.Errorf("expected scared, got %v", result.Emotion)
	}
}

func TestRuleExtractorSummarizesFirstSentenceOfUserMessagesOnly(t *testing.T) {
	r := NewRuleExtractor(200)
	result, err := r.Extract(context.Background(), []store.Message{
		{Role: store.RoleUser, Text: "我叫小明。我今年5岁。"},
		{Role: store.RoleAssistant, Text: "你好小明！很高兴认识你。"},
		{Role: store.RoleUser, Text: "我喜欢恐龙，它们很酷。"},
	}, "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "我叫小明。 我喜欢恐龙，它们很酷。"
	if result.Summary != want {
		t.Errorf("expected summary %q, got %q", want, result.Summary)
	}
}

type stubExtractor struct {
	result *ExtractionResult
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*ExtractionResult, error) {
	return s.result, s.err
}

func TestFallbackExtractorFallsBackOnSchemaError(t *testing.T) {
	primary := &stubExtractor{err: memerr.ErrSchema}
	secondary := &stubExtractor{result: &ExtractionResult{Summary: "from secondary"}}

	fb := NewFallbackExtractor(primary, secondary, nil)
	result, err := fb.Extract(context.Background(), msgs("hi"), "u1")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result.Summary != "from secondary" {
		t.Errorf("expected fallback result, got %+v", result)
	}
}

func TestFallbackExtractorPropagatesCancellation(t *testing.T) {
	primary := &stubExtractor{err: errors.Join(memerr.ErrCancelled, context.Canceled)}
	secondary := &stubExtractor{result: &ExtractionResult{Summary: "should not be used"}}

	fb := NewFallbackExtractor(primary, secondary, nil)
	_, err := fb.Extract(context.Background(), msgs("hi"), "u1")
	if !errors.Is(err, memerr.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
