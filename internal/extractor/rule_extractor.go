package extractor

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nugget/memoraid/internal/store"
)

// RuleExtractor is the deterministic fallback path: regular expressions
// and closed verb/lexicon tables instead of a model. It never returns an
// error — there's no schema to violate — so FallbackExtractor treats it
// as the floor every session can always fall back to.
type RuleExtractor struct {
	summaryMaxLen int
}

func NewRuleExtractor(summaryMaxLen int) *RuleExtractor {
	if summaryMaxLen <= 0 {
		summaryMaxLen = 200
	}
	return &RuleExtractor{summaryMaxLen: summaryMaxLen}
}

var (
	namePattern   = regexp.MustCompile(`我叫([\p{Han}\w]{1,12})|[Mm]y name is (\w+)|[Ii]'?m (\w+)`)
	agePattern    = regexp.MustCompile(`我(?:今年|已经)?(\d{1,3})岁|[Ii] am (\d{1,3}) years old|[Ii]'?m (\d{1,3}) years old`)
	genderPattern = regexp.MustCompile(`我是(男生|女生|男孩|女孩)`)
)

// likeVerbs/dislikeVerbs/fearVerbs are the closed predicate vocabulary
// the rule extractor recognizes. Anything outside these simply produces
// no fact — precision over recall, since a wrong fact is worse than a
// missed one.
var (
	likeVerbs    = []string{"喜欢", "爱", "最爱"}
	dislikeVerbs = []string{"不喜欢", "讨厌"}
	fearVerbs    = []string{"害怕", "怕"}
)

var emotionLexicon = map[string]store.Emotion{
	"开心": store.EmotionHappy, "高兴": store.EmotionHappy, "快乐": store.EmotionHappy,
	"难过": store.EmotionSad, "伤心": store.EmotionSad, "哭": store.EmotionSad,
	"害怕": store.EmotionScared, "怕": store.EmotionScared,
	"生气": store.EmotionAngry, "愤怒": store.EmotionAngry,
	"好奇": store.EmotionCurious, "为什么": store.EmotionCurious,
}

var stopwords = map[string]bool{
	"的": true, "了": true, "是": true, "我": true, "你": true, "他": true, "她": true,
	"the": true, "a": true, "is": true, "i": true, "you": true, "and": true, "to": true,
}

func (e *RuleExtractor) Extract(ctx context.Context, messages []store.Message, userID string) (*ExtractionResult, error) {
	var userText strings.Builder
	var allText strings.Builder
	for _, m := range messages {
		allText.WriteString(m.Text)
		allText.WriteString(" ")
		if m.Role == store.RoleUser {
			userText.WriteString(m.Text)
			userText.WriteString(" ")
		}
	}
	text := userText.String()

	delta := extractProfileDelta(text)
	subject := "user"
	if delta.Name != nil {
		subject = *delta.Name
	}
	facts, tags := extractFacts(text, userID, subject)
	delta.AddTags = append(delta.AddTags, tags...)
	emotion := classifyEmotion(allText.String())
	keywords := topKeywords(allText.String(), 8)
	summary := summarize(messages, e.summaryMaxLen)

	importance := 0.3
	importance += 0.1 * float64(len(facts))
	if !delta.Empty() {
		importance += 0.1
	}
	if emotion != store.EmotionNeutral {
		importance += 0.1
	}
	importance = clip01(importance)

	return &ExtractionResult{
		Summary:      summary,
		Keywords:     keywords,
		Emotion:      emotion,
		Importance:   importance,
		Facts:        facts,
		ProfileDelta: delta,
	}, nil
}

func extractProfileDelta(text string) ProfileDelta {
	var delta ProfileDelta

	if m := namePattern.FindStringSubmatch(text); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				name := g
				delta.Name = &name
				break
			}
		}
	}
	if m := agePattern.FindStringSubmatch(text); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				if age, err := strconv.Atoi(g); err == nil {
					delta.Age = &age
				}
				break
			}
		}
	}
	if m := genderPattern.FindStringSubmatch(text); m != nil && m[1] != "" {
		gender := normalizeGender(m[1])
		delta.Gender = &gender
	}

	return delta
}

func normalizeGender(raw string) string {
	switch raw {
	case "男生", "男孩":
		return "male"
	case "女生", "女孩":
		return "female"
	default:
		return raw
	}
}

// extractFacts returns the preference facts found in text together with
// the "<verb> <object>" tags spec.md §4.3 step 2 adds to profile_delta
// for every matched verb, not just likes.
func extractFacts(text, userID, subject string) ([]store.Fact, []string) {
	var facts []store.Fact
	var tags []string
	add := func(verbs []string, predicate string, confidence float64) {
		f, t := factsForVerbs(text, userID, subject, verbs, predicate, confidence)
		facts = append(facts, f...)
		tags = append(tags, t...)
	}
	add(likeVerbs, "喜欢", 0.7)
	add(dislikeVerbs, "不喜欢", 0.7)
	add(fearVerbs, "害怕", 0.6)
	return facts, tags
}

func factsForVerbs(text, userID, subject string, verbs []string, predicate string, confidence float64) ([]store.Fact, []string) {
	var facts []store.Fact
	var tags []string
	for _, verb := range verbs {
		for _, obj := range objectsOf(text, verb) {
			facts = append(facts, store.Fact{
				UserID:     userID,
				Subject:    subject,
				Predicate:  predicate,
				Object:     obj,
				Confidence: confidence,
			})
			tags = append(tags, verb+" "+obj)
		}
	}
	return facts, tags
}

// objectsOf finds "<verb><object>" occurrences and returns the object,
// truncated at the next clause boundary (punctuation or a newline) and
// trimmed of surrounding whitespace.
var clauseBoundary = regexp.MustCompile(`[，。！？,.!?\n]`)

func objectsOf(text, verb string) []string {
	var out []string
	idx := 0
	for {
		pos := strings.Index(text[idx:], verb)
		if pos < 0 {
			break
		}
		start := idx + pos + len(verb)
		rest := text[start:]
		end := clauseBoundary.FindStringIndex(rest)
		var obj string
		if end != nil {
			obj = strings.TrimSpace(rest[:end[0]])
		} else {
			obj = strings.TrimSpace(rest)
		}
		if obj != "" && len(obj) <= 40 {
			out = append(out, obj)
		}
		idx = start
	}
	return out
}

func classifyEmotion(text string) store.Emotion {
	counts := map[store.Emotion]int{}
	for word, emo := range emotionLexicon {
		counts[emo] += strings.Count(text, word)
	}
	best := store.EmotionNeutral
	bestCount := 0
	for emo, n := range counts {
		if n > bestCount {
			best = emo
			bestCount = n
		}
	}
	return best
}

func topKeywords(text string, n int) []string {
	tokens := tokenize(text)
	freq := make(map[string]int, len(tokens))
	var order []string
	for _, t := range tokens {
		if stopwords[t] || t == "" {
			continue
		}
		if _, seen := freq[t]; !seen {
			order = append(order, t)
		}
		freq[t]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// tokenize splits on ASCII whitespace/punctuation for Latin text and
// treats each CJK rune as its own token, since the language has no
// whitespace between words.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\n' || r == '\t' || strings.ContainsRune(",.!?，。！？、", r):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// sentenceBoundary splits on the first clause/sentence terminator, Latin
// or CJK, so "我叫小明。我喜欢恐龙" yields "我叫小明。" as its first sentence.
var sentenceBoundary = regexp.MustCompile(`[。！？.!?]`)

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if loc := sentenceBoundary.FindStringIndex(text); loc != nil {
		return text[:loc[1]]
	}
	return text
}

func summarize(messages []store.Message, maxLen int) string {
	var b strings.Builder
	first := true
	for _, m := range messages {
		if m.Role != store.RoleUser {
			continue
		}
		sentence := firstSentence(m.Text)
		if sentence == "" {
			continue
		}
		if !first {
			b.WriteString(" ")
		}
		b.WriteString(sentence)
		first = false
	}
	return truncateAtWordBoundary(b.String(), maxLen)
}

func truncateAtWordBoundary(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := n
	for cut > 0 && r[cut] != ' ' {
		cut--
	}
	if cut == 0 {
		cut = n
	}
	return string(r[:cut]) + "..."
}
