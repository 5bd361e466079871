package manager

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// ExportUser returns userID's full profile/episodes/facts for backup.
func (m *Manager) ExportUser(ctx context.Context, userID string) (*store.UserExport, error) {
	export, err := m.storage.ExportUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	return export, nil
}

// ImportUser restores a previously exported user, preserving IDs. Any
// cached retrieval results for the user are invalidated since the
// restored data invalidates whatever was cached before.
func (m *Manager) ImportUser(ctx context.Context, export store.UserExport) error {
	if err := m.storage.ImportUser(ctx, export); err != nil {
		return fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	if export.Profile != nil {
		m.invalidateCache(export.Profile.UserID)
	}
	return nil
}

// RenderExportMarkdown renders a UserExport as Markdown, alongside the
// canonical JSON export — useful for a human reading a backup rather
// than a program restoring one.
func RenderExportMarkdown(userID string, export *store.UserExport) (string, error) {
	var src strings.Builder
	fmt.Fprintf(&src, "# Memory export for %s\n\n", userID)

	if export.Profile != nil {
		p := export.Profile
		src.WriteString("## Profile\n\n")
		if p.Name != "" {
			fmt.Fprintf(&src, "- **Name**: %s\n", p.Name)
		}
		if p.Age > 0 {
			fmt.Fprintf(&src, "- **Age**: %d\n", p.Age)
		}
		if p.Gender != "" {
			fmt.Fprintf(&src, "- **Gender**: %s\n", p.Gender)
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(&src, "- **Tags**: %s\n", strings.Join(p.Tags, ", "))
		}
		src.WriteString("\n")
	}

	if len(export.Facts) > 0 {
		src.WriteString("## Facts\n\n")
		for _, f := range export.Facts {
			fmt.Fprintf(&src, "- %s%s%s (confidence %.2f)\n", f.Subject, f.Predicate, f.Object, f.Confidence)
		}
		src.WriteString("\n")
	}

	if len(export.Episodes) > 0 {
		src.WriteString("## Episodes\n\n")
		for _, ep := range export.Episodes {
			fmt.Fprintf(&src, "- %s _(importance %.2f, emotion %s)_\n", ep.Summary, ep.Importance, ep.Emotion)
		}
	}

	var out bytes.Buffer
	if err := goldmark.Convert([]byte(src.String()), &out); err != nil {
		return "", fmt.Errorf("render export markdown: %w", err)
	}
	return out.String(), nil
}
