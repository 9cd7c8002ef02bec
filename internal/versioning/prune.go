package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PruneTask applies retention to every object that owns history. It is the
// scheduled-task entry point: failures are logged and returned as the
// result message instead of propagating.
type PruneTask struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger
}

// NewPruneTask creates a task that runs every interval when started with
// Run. A non-positive interval defaults to one hour.
func NewPruneTask(m *Manager, interval time.Duration, logger zerolog.Logger) *PruneTask {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PruneTask{manager: m, interval: interval, logger: logger}
}

// Execute runs one retention pass. It returns "" on success and the error
// message otherwise.
func (t *PruneTask) Execute(ctx context.Context) string {
	removed, err := t.prune(ctx)
	t.manager.metrics.RecordPrune(err)
	if err != nil {
		t.manager.events.LogException("PruneTask", "EXECUTE", err)
		t.logger.Error().Err(err).Msg("version prune failed")
		return err.Error()
	}
	if removed > 0 {
		t.logger.Info().Int("removed", removed).Msg("version prune completed")
	}
	return ""
}

func (t *PruneTask) prune(ctx context.Context) (removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prune panicked: %v", r)
		}
	}()

	refs, err := t.manager.repo.ListVersionedObjects(ctx)
	if err != nil {
		return 0, err
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		siteName, err := t.manager.siteName(ctx, t.manager.repo, ref.SiteID)
		if err != nil {
			return removed, err
		}
		n, err := t.manager.DeleteOlderVersions(ctx, ref.ObjectType, ref.ObjectID, siteName)
		removed += n
		if err != nil {
			return removed, fmt.Errorf("pruning %s %d: %w", ref.ObjectType, ref.ObjectID, err)
		}
	}
	return removed, nil
}

// Run executes the task on every tick until ctx is cancelled.
func (t *PruneTask) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("version prune worker started")
	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("version prune worker stopped")
			return
		case <-ticker.C:
			t.Execute(ctx)
		}
	}
}
