package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"courierdb/pkg/logger"
	"courierdb/pkg/store"
)

// Config controls the scheduled purge of aged messages. Disabled by
// default; conversations keep their full history unless a deployment
// opts in.
type Config struct {
	Enabled bool
	// Cron is a standard five-field cron expression. Empty means
	// daily at 02:00 UTC.
	Cron string
	// MaxAge is the retention horizon; messages created earlier than
	// now-MaxAge are removed.
	MaxAge time.Duration
}

// Start launches the retention scheduler if enabled. Returns a cancel
// func; a no-op cancel when retention is disabled.
func Start(ctx context.Context, st *store.Store, cfg Config) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention enabled but max_age not set")
	}
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_age", cfg.MaxAge.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cfg, cronExpr)
	return cancel, nil
}

// RunOnce purges aged messages across all conversations immediately.
// Exposed for admin triggers and tests.
func RunOnce(ctx context.Context, st *store.Store, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).UnixNano()
	convs, err := st.Conversations(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ck := range convs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, perr := st.PurgeOlderThan(ck, cutoff)
		if perr != nil {
			logger.Error("retention_purge_failed", "conversation", ck, "error", perr)
			continue
		}
		total += n
	}
	if total > 0 {
		logger.Info("retention_run_complete", "removed", total)
	}
	return total, nil
}

// runScheduler computes the next tick for the configured cron
// expression and sleeps until then.
func runScheduler(ctx context.Context, st *store.Store, cfg Config, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			if _, err := RunOnce(ctx, st, cfg.MaxAge); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			if _, err := RunOnce(ctx, st, cfg.MaxAge); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}
