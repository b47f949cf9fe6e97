package journal

import (
	"context"
	"log/slog"
	"time"
)

// RunPruner prunes entries older than retention every interval until ctx is
// cancelled.
func (j *Journal) RunPruner(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Prune(ctx, retention)
			if err != nil {
				logger.Error("failed to prune journal", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned journal", "deleted", n, "retention", retention)
			}
		}
	}
}
