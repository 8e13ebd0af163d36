package eligibility

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// Report is a user's progress across every tier at one snapshot.
type Report struct {
	UserID         string            `json:"user_id"`
	ReferencePrice float64           `json:"reference_price"`
	Counts         CountVector       `json:"counts"`
	Descendants    int               `json:"descendants"`
	Tiers          []Evaluation      `json:"tiers"`
	Flags          domain.ClaimFlags `json:"flags"`
	TakenAt        time.Time         `json:"taken_at"`
}

// Tier returns the evaluation for id, if present.
func (r *Report) Tier(id domain.TierID) (Evaluation, bool) {
	for _, ev := range r.Tiers {
		if ev.TierID == id {
			return ev, true
		}
	}
	return Evaluation{}, false
}

// Engine evaluates users against the tier table using live storage.
type Engine struct {
	snapshots domain.SnapshotProvider
	users     domain.UserStore
	log       *slog.Logger
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(snapshots domain.SnapshotProvider, users domain.UserStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{snapshots: snapshots, users: users, log: log}
}

// Counts takes a fresh snapshot for the user and tallies qualifying
// descendants. The user's own value is the reference price.
func (e *Engine) Counts(ctx context.Context, userID string) (*domain.User, CountVector, *domain.NetworkSnapshot, error) {
	user, err := e.users.User(ctx, userID)
	if err != nil {
		return nil, CountVector{}, nil, fmt.Errorf("load user %q: %w", userID, err)
	}
	snap, err := e.snapshots.Snapshot(ctx, userID, domain.MaxGeneration)
	if err != nil {
		return nil, CountVector{}, nil, fmt.Errorf("snapshot %q: %w", userID, err)
	}
	return user, Count(snap, user.Value), snap, nil
}

// Report evaluates every tier for the user.
func (e *Engine) Report(ctx context.Context, userID string) (*Report, error) {
	start := time.Now()
	defer func() { observability.EvaluationDuration.Observe(time.Since(start).Seconds()) }()

	user, counts, snap, err := e.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	nodes := snap.Flatten(domain.MaxGeneration)
	observability.SnapshotSize.Observe(float64(len(nodes)))

	evals, err := EvaluateAll(ctx, counts)
	if err != nil {
		return nil, err
	}

	e.log.Debug("eligibility: report",
		"user", userID,
		"counts", counts,
		"descendants", len(nodes),
		observability.LogAttr(ctx))

	return &Report{
		UserID:         userID,
		ReferencePrice: user.Value,
		Counts:         counts,
		Descendants:    len(nodes),
		Tiers:          evals,
		Flags:          user.Flags,
		TakenAt:        snap.TakenAt,
	}, nil
}

// EvaluateAll evaluates every tier concurrently and returns the results in
// table order.
func EvaluateAll(ctx context.Context, counts CountVector) ([]Evaluation, error) {
	if err := counts.Validate(); err != nil {
		return nil, err
	}
	defs := domain.Tiers()
	out := make([]Evaluation, len(defs))

	g, _ := errgroup.WithContext(ctx)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			ev, err := Evaluate(counts, def)
			if err != nil {
				return err
			}
			out[i] = ev
			observability.EvaluationsTotal.WithLabelValues(def.ID.String(), strconv.FormatBool(ev.Eligible)).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
