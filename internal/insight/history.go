package insight

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// historySweepTimeout bounds one retention sweep.
const historySweepTimeout = 30 * time.Second

// sweepHistoryEvery prunes verdict history on every tick until ctx ends,
// then closes done.
func (m *Module) sweepHistoryEvery(ctx context.Context, every time.Duration, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.pruneHistory(ctx, now)
		}
	}
}

// pruneHistory deletes verdicts older than the retention window as of now.
// It returns the number deleted.
func (m *Module) pruneHistory(ctx context.Context, now time.Time) int64 {
	if m.history == nil || m.cfg.VerdictRetention <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, historySweepTimeout)
	defer cancel()

	n, err := m.history.DeleteOldVerdicts(ctx, now.Add(-m.cfg.VerdictRetention))
	switch {
	case err != nil:
		m.logger.Warn("verdict history sweep failed", zap.Error(err))
	case n > 0:
		m.logger.Info("verdict history pruned",
			zap.Int64("deleted", n),
			zap.Duration("retention", m.cfg.VerdictRetention),
		)
	}
	return n
}
