package manager

import (
	"context"
	"fmt"

	"github.com/nugget/memoraid/internal/memerr"
)

// MaintenanceForget runs the forgetting pass for a single user (the
// /maintenance/forget/{user_id} endpoint) and returns the number of
// records removed.
func (m *Manager) MaintenanceForget(ctx context.Context, userID string) (int, error) {
	n, err := m.forgetter.RunForget(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	m.invalidateCache(userID)
	return n, nil
}

// MaintenanceCleanup runs RunMaintenance (forgetting plus cap
// enforcement) for every user with persisted records, the
// /maintenance/cleanup endpoint's "no caller required" sweep. It
// returns the total number of records removed or evicted across all
// users, continuing past any single user's failure rather than
// aborting the whole sweep.
func (m *Manager) MaintenanceCleanup(ctx context.Context) (int, error) {
	userIDs, err := m.storage.AllUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}

	total := 0
	for _, userID := range userIDs {
		n, err := m.forgetter.RunMaintenance(ctx, userID)
		if err != nil {
			m.logger.Warn("maintenance cleanup failed for user", "user_id", userID, "error", err)
			continue
		}
		total += n
		m.invalidateCache(userID)
	}
	return total, nil
}
