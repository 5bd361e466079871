package manager

import (
	"context"
	"fmt"

	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// applyProfileDelta merges delta into userID's stored profile, appending
// new tags up to maxTags (oldest tags drop off the front, since Tags is
// a recency-ordered list per spec.md §4.1).
func applyProfileDelta(ctx context.Context, tx store.Storage, userID string, delta extractor.ProfileDelta, maxTags int) error {
	existing, err := tx.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	p := store.Profile{UserID: userID, CreatedAt: now()}
	if existing != nil {
		p = *existing
	}
	p.UserID = userID
	p.UpdatedAt = now()

	if delta.Name != nil {
		p.Name = *delta.Name
	}
	if delta.Age != nil {
		p.Age = *delta.Age
	}
	if delta.Gender != nil {
		p.Gender = *delta.Gender
	}
	for _, tag := range delta.AddTags {
		// A re-observed tag moves to the most-recent (last) position.
		kept := make([]string, 0, len(p.Tags)+1)
		for _, t := range p.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		p.Tags = append(kept, tag)
	}
	if maxTags > 0 && len(p.Tags) > maxTags {
		p.Tags = p.Tags[len(p.Tags)-maxTags:]
	}

	return tx.UpsertProfile(ctx, p)
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// GetProfile returns userID's profile, or nil if none has been recorded.
func (m *Manager) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := m.storage.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	return p, nil
}

// ReplaceProfile overwrites userID's stored profile wholesale (the
// PUT /profile semantics spec.md §6 describes), trimming Tags to
// MaxProfileTags if the caller supplied more than that.
func (m *Manager) ReplaceProfile(ctx context.Context, p store.Profile) error {
	if p.CreatedAt.IsZero() {
		if existing, err := m.storage.GetProfile(ctx, p.UserID); err == nil && existing != nil {
			p.CreatedAt = existing.CreatedAt
		} else {
			p.CreatedAt = now()
		}
	}
	p.UpdatedAt = now()
	if max := m.cfg.MaxProfileTags; max > 0 && len(p.Tags) > max {
		p.Tags = p.Tags[len(p.Tags)-max:]
	}
	if err := m.storage.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	m.invalidateCache(p.UserID)
	return nil
}
