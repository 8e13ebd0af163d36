package claims

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// ReconcilerConfig controls the credit reconciler.
type ReconcilerConfig struct {
	Interval      time.Duration // time between passes (default: 1m)
	BatchSize     int           // claims per pass (default: 500)
	MaxConcurrent int           // concurrent credits (default: 4)
	Retry         dberror.RetryConfig
}

// DefaultReconcilerConfig returns production defaults.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:      time.Minute,
		BatchSize:     500,
		MaxConcurrent: 4,
		Retry:         dberror.DefaultRetryConfig(),
	}
}

// PassResult summarises one reconcile pass.
type PassResult struct {
	Pending  int `json:"pending"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
}

// Stats are cumulative reconciler counters.
type Stats struct {
	Passes   int64 `json:"passes"`
	Credited int64 `json:"credited"`
	Failed   int64 `json:"failed"`
}

// Reconciler credits settled claims whose ledger entry is missing, e.g.
// because the ledger was unavailable at claim time.
type Reconciler struct {
	svc    *Service
	claims domain.ClaimStore
	cfg    ReconcilerConfig
	clock  clockwork.Clock
	log    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewReconciler creates a reconciler sharing the service's ledger.
func NewReconciler(svc *Service, cfg ReconcilerConfig) *Reconciler {
	def := DefaultReconcilerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	return &Reconciler{
		svc:    svc,
		claims: svc.claims,
		cfg:    cfg,
		clock:  svc.clock,
		log:    svc.log,
	}
}

// Run reconciles every Interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.log.Info("reconciler: started", "interval", r.cfg.Interval)
	for {
		if _, err := r.Once(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("reconciler: pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.log.Info("reconciler: stopped")
			return nil
		case <-ticker.Chan():
		}
	}
}

// Once performs a single pass over pending credits.
func (r *Reconciler) Once(ctx context.Context) (PassResult, error) {
	pending, err := dberror.Retry(ctx, r.cfg.Retry, func() ([]domain.ClaimRecord, error) {
		return r.claims.PendingCredits(ctx, r.cfg.BatchSize)
	})
	if err != nil {
		return PassResult{}, err
	}
	observability.PendingCredits.Set(float64(len(pending)))

	res := PassResult{Pending: len(pending)}
	if len(pending) == 0 {
		r.record(res)
		return res, nil
	}

	settings, err := r.svc.rewardSettings(ctx)
	if err != nil {
		return res, err
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, r.cfg.MaxConcurrent)
	)
	for _, rec := range pending {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return res, ctx.Err()
		}
		wg.Add(1)
		go func(rec domain.ClaimRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := dberror.Retry(ctx, r.cfg.Retry, func() (struct{}, error) {
				return struct{}{}, r.svc.Credit(ctx, rec, settings, "reconcile")
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				observability.CreditFailures.Inc()
				r.log.Warn("reconciler: credit failed", "claim", rec.ID, "user", rec.UserID, "error", err)
				return
			}
			res.Credited++
		}(rec)
	}
	wg.Wait()

	r.record(res)
	if res.Credited > 0 || res.Failed > 0 {
		r.log.Info("reconciler: pass complete", "pending", res.Pending, "credited", res.Credited, "failed", res.Failed)
	}
	return res, nil
}

func (r *Reconciler) record(res PassResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Passes++
	r.stats.Credited += int64(res.Credited)
	r.stats.Failed += int64(res.Failed)
}

// Stats returns cumulative counters.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
