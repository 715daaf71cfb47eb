package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/ripkitten-co/tether"
	"github.com/ripkitten-co/tether/internal/pg"
)

type DaemonOption func(*daemonConfig)

type daemonConfig struct {
	interval time.Duration
	autoFix  bool
}

// WithInterval sets how often the daemon reconciles. Default 5 minutes.
func WithInterval(d time.Duration) DaemonOption {
	return func(c *daemonConfig) { c.interval = d }
}

// WithAutoFix controls whether passes repair high-confidence findings or
// only record them. Default on.
func WithAutoFix(enabled bool) DaemonOption {
	return func(c *daemonConfig) { c.autoFix = enabled }
}

// Daemon runs reconciliation passes on a schedule. A Postgres advisory lock
// keyed by the scope ensures only one node reconciles a scope at a time;
// nodes that lose the lock simply skip the tick.
type Daemon struct {
	recon  *Reconciler
	exec   pg.Executor
	config daemonConfig
	log    *slog.Logger
}

// NewDaemon creates a daemon for the reconciler's scope using the given
// backend's executor for lock coordination.
func NewDaemon(recon *Reconciler, b tether.Backend, opts ...DaemonOption) *Daemon {
	cfg := daemonConfig{
		interval: 5 * time.Minute,
		autoFix:  true,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Daemon{
		recon:  recon,
		exec:   b.DBExecutor(),
		config: cfg,
		log:    slog.Default(),
	}
}

// Run reconciles immediately, then on every tick until the context is
// cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context) {
	scope := d.recon.ScopeID()
	lock := "tether_reconcile:" + scope

	acquired, err := pg.TryAdvisoryLock(ctx, d.exec, lock)
	if err != nil {
		d.log.Error("acquire lock", "scope", scope, "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := pg.AdvisoryUnlock(ctx, d.exec, lock); err != nil {
			d.log.Error("release lock", "scope", scope, "error", err)
		}
	}()

	summary, err := d.recon.Reconcile(ctx, d.config.autoFix)
	if err != nil {
		d.log.Error("reconcile pass", "scope", scope, "error", err)
		return
	}
	if len(summary.Inconsistencies) > 0 {
		d.log.Info("reconcile pass",
			"scope", scope,
			"findings", len(summary.Inconsistencies),
			"autoFixed", summary.AutoFixed,
			"humanReview", summary.RequiresHumanReview,
		)
	}
}
