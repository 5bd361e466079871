package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// MemoryContext is the rendered result of GetMemoryContext: the system
// prompt text plus the raw episodes/facts/profile it was built from, so
// callers that want structured access don't have to re-parse the
// rendered blocks.
type MemoryContext struct {
	SystemPrompt string
	Profile      *store.Profile
	Episodes     []store.Episode
	Facts        []store.Fact
}

// GetMemoryContext retrieves and renders a user's relevant memory for
// query, the three fixed blocks spec.md names: 【用户信息】(profile),
// 【已知信息】(facts), 【相关记忆】(episodes). An empty block is omitted
// entirely rather than rendered with no content under its header.
// Results are cached per (user_id, query) when Config.EnableCache is set.
func (m *Manager) GetMemoryContext(ctx context.Context, userID, query string) (*MemoryContext, error) {
	if m.cache != nil {
		if cached, ok := m.cache.Get(cacheKey(userID, query)); ok {
			return cached.(*MemoryContext), nil
		}
	}

	profile, err := m.storage.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}

	episodes, facts, err := m.retriever.Retrieve(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}

	mc := &MemoryContext{
		SystemPrompt: renderSystemPrompt(profile, facts, episodes),
		Profile:      profile,
		Episodes:     episodes,
		Facts:        facts,
	}

	if m.cache != nil {
		m.cache.SetDefault(cacheKey(userID, query), mc)
	}
	return mc, nil
}

func renderSystemPrompt(profile *store.Profile, facts []store.Fact, episodes []store.Episode) string {
	var b strings.Builder

	if profile != nil && (profile.Name != "" || profile.Age > 0 || profile.Gender != "" || len(profile.Tags) > 0) {
		b.WriteString("【用户信息】\n")
		if profile.Name != "" {
			fmt.Fprintf(&b, "姓名: %s\n", profile.Name)
		}
		if profile.Age > 0 {
			fmt.Fprintf(&b, "年龄: %d\n", profile.Age)
		}
		if profile.Gender != "" {
			fmt.Fprintf(&b, "性别: %s\n", profile.Gender)
		}
		if len(profile.Tags) > 0 {
			fmt.Fprintf(&b, "标签: %s\n", strings.Join(profile.Tags, ", "))
		}
		b.WriteString("\n")
	}

	if len(facts) > 0 {
		b.WriteString("【已知信息】\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- %s%s%s\n", f.Subject, f.Predicate, f.Object)
		}
		b.WriteString("\n")
	}

	if len(episodes) > 0 {
		b.WriteString("【相关记忆】\n")
		for _, ep := range episodes {
			fmt.Fprintf(&b, "- %s\n", ep.Summary)
		}
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}
