package versioning

import (
	"context"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// DeleteOlderVersions trims the object's history to the site's limits.
// Major and minor entries are counted and trimmed separately, newest kept;
// a limit of 0 disables trimming for that class. Returns the number of
// entries removed.
func (m *Manager) DeleteOlderVersions(ctx context.Context, objectType string, objectID int64, siteName string) (int, error) {
	var n int
	err := m.repo.InTx(ctx, func(r types.Repository) error {
		var err error
		n, err = m.deleteOlderVersions(ctx, r, objectType, objectID, siteName)
		return err
	})
	return n, err
}

func (m *Manager) deleteOlderVersions(ctx context.Context, r types.Repository, objectType string, objectID int64, siteName string) (int, error) {
	classes := []struct {
		major   bool
		setting string
	}{
		{false, types.SettingVersionHistoryLength},
		{true, types.SettingMajorVersionHistoryLength},
	}

	removed := 0
	for _, c := range classes {
		limit := m.settings.Int(siteName, c.setting)
		if limit <= 0 {
			continue
		}
		ids, err := r.ListVersionIDs(ctx, objectType, objectID, c.major)
		if err != nil {
			return removed, err
		}
		if len(ids) <= limit {
			continue
		}
		for _, id := range ids[limit:] {
			if err := m.destroyVersion(ctx, r, id); err != nil {
				return removed, err
			}
		}
		trimmed := len(ids) - limit
		removed += trimmed
		m.metrics.RecordTrimmed(c.major, trimmed)
	}
	return removed, nil
}
