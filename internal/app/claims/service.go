// Package claims settles reward tiers: it re-checks eligibility on a fresh
// snapshot, creates the claim record at most once per (user, tier), and
// credits the reward ledger idempotently.
package claims

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// creditNamespace derives ledger entry IDs from claim IDs.
var creditNamespace = uuid.MustParse("6f1c3c52-9f0e-4b8e-9d51-2d8e7f0c4a11")

// Outcome labels for ClaimsTotal.
const (
	outcomeCreated        = "created"
	outcomeAlreadyClaimed = "already_claimed"
	outcomeNotEligible    = "not_eligible"
	outcomeInvalid        = "invalid"
	outcomeUnavailable    = "storage_unavailable"
	outcomeError          = "error"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Engine   *eligibility.Engine
	Claims   domain.ClaimStore
	Ledger   domain.Ledger
	Settings domain.SettingsStore
	Clock    clockwork.Clock
	Tracer   *observability.Tracer
	Logger   *slog.Logger
}

// Service runs the claim state machine.
type Service struct {
	engine   *eligibility.Engine
	claims   domain.ClaimStore
	ledger   domain.Ledger
	settings domain.SettingsStore
	clock    clockwork.Clock
	tracer   *observability.Tracer
	log      *slog.Logger
}

// NewService creates a claim service.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		engine:   d.Engine,
		claims:   d.Claims,
		ledger:   d.Ledger,
		settings: d.Settings,
		clock:    d.Clock,
		tracer:   d.Tracer,
		log:      d.Logger,
	}
}

// Claim settles tierID for userID.
//
// On success the new record is returned. If the tier was already claimed,
// the existing record is returned together with an *AlreadyClaimedError,
// which callers retrying a claim should treat as success. A failed ledger
// credit does not fail the claim; the reconciler picks it up.
func (s *Service) Claim(ctx context.Context, userID string, tierID domain.TierID) (rec *domain.ClaimRecord, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "claim", map[string]string{"user": userID, "tier": tierID.String()})
	defer func() {
		outcome := classify(err)
		observability.ClaimsTotal.WithLabelValues(tierID.String(), outcome).Inc()
		observability.ClaimDuration.Observe(time.Since(start).Seconds())
		if outcome == outcomeAlreadyClaimed {
			s.tracer.End(span, nil)
		} else {
			s.tracer.End(span, err)
		}
	}()

	def, ok := domain.LookupTier(tierID)
	if !ok {
		return nil, domain.UnknownTier(tierID)
	}
	if userID == "" {
		return nil, domain.Invalid("user", "user id is empty")
	}

	existing, err := s.claims.Get(ctx, userID, tierID)
	switch {
	case err == nil:
		return existing, &domain.AlreadyClaimedError{UserID: userID, TierID: tierID, ClaimedAt: existing.ClaimedAt}
	case !errors.Is(err, domain.ErrClaimNotFound):
		return nil, err
	}

	user, ev, err := s.evaluate(ctx, userID, def)
	if err != nil {
		return nil, err
	}
	if !ev.Eligible {
		return nil, &domain.NotEligibleError{
			UserID:   userID,
			TierID:   tierID,
			Progress: ev.ProgressPercent,
			Missing:  ev.Explanation,
		}
	}

	settings, err := s.rewardSettings(ctx)
	if err != nil {
		return nil, err
	}

	candidate := domain.ClaimRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		TierID:    tierID,
		ClaimedAt: s.clock.Now().UTC(),
		Amount:    RewardAmount(*user, tierID, settings),
	}
	created, stored, err := s.persist(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !created {
		return &stored, &domain.AlreadyClaimedError{UserID: userID, TierID: tierID, ClaimedAt: stored.ClaimedAt}
	}

	s.log.Info("claims: settled",
		"user", userID,
		"tier", tierID.String(),
		"claim", stored.ID,
		"amount", stored.Amount.String(),
		observability.LogAttr(ctx))

	if err := s.Credit(ctx, stored, settings, "claim"); err != nil {
		observability.CreditFailures.Inc()
		s.log.Warn("claims: credit deferred to reconciler",
			"claim", stored.ID, "error", err, observability.LogAttr(ctx))
	}
	return &stored, nil
}

func (s *Service) evaluate(ctx context.Context, userID string, def domain.TierDefinition) (*domain.User, eligibility.Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "evaluate", nil)
	user, counts, _, err := s.engine.Counts(ctx, userID)
	if err != nil {
		s.tracer.End(span, err)
		return nil, eligibility.Evaluation{}, err
	}
	ev, err := eligibility.Evaluate(counts, def)
	s.tracer.End(span, err)
	return user, ev, err
}

func (s *Service) persist(ctx context.Context, rec domain.ClaimRecord) (bool, domain.ClaimRecord, error) {
	ctx, span := s.tracer.Start(ctx, "persist", nil)
	created, stored, err := s.claims.CreateIfAbsent(ctx, rec)
	s.tracer.End(span, err)
	return created, stored, err
}

func (s *Service) rewardSettings(ctx context.Context) (domain.RewardSettings, error) {
	if s.settings == nil {
		return domain.DefaultRewardSettings(), nil
	}
	return s.settings.RewardSettings(ctx)
}

// Credit writes the ledger entry for rec. It is safe to call repeatedly.
func (s *Service) Credit(ctx context.Context, rec domain.ClaimRecord, settings domain.RewardSettings, source string) error {
	ctx, span := s.tracer.Start(ctx, "credit", map[string]string{"claim": rec.ID})
	err := s.ledger.Credit(ctx, LedgerEntryFor(rec, settings))
	s.tracer.End(span, err)
	if err != nil {
		return err
	}
	observability.CreditsTotal.WithLabelValues(source).Inc()
	return nil
}

// LedgerEntryFor builds the credit settling rec. The entry ID is derived
// from the claim ID so every retry produces the same entry.
func LedgerEntryFor(rec domain.ClaimRecord, settings domain.RewardSettings) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        uuid.NewSHA1(creditNamespace, []byte(rec.ID)).String(),
		ClaimID:   rec.ID,
		Timestamp: rec.ClaimedAt,
		Type:      domain.TxReward,
		EntryType: domain.EntryCredit,
		Account:   rec.UserID,
		Amount:    rec.Amount,
		Reason:    rec.TierID,
		MaturesAt: MaturesAt(rec.ClaimedAt, settings),
	}
}

// History returns the user's claim records in claim order.
func (s *Service) History(ctx context.Context, userID string) ([]domain.ClaimRecord, error) {
	return s.claims.ListByUser(ctx, userID)
}

// Flags derives the per-tier claimed flags from the record set.
func (s *Service) Flags(ctx context.Context, userID string) (domain.ClaimFlags, error) {
	recs, err := s.claims.ListByUser(ctx, userID)
	if err != nil {
		return domain.ClaimFlags{}, err
	}
	return domain.FlagsFromRecords(recs), nil
}

// State returns the claim state of (userID, tierID).
func (s *Service) State(ctx context.Context, userID string, tierID domain.TierID) (domain.ClaimState, *domain.ClaimRecord, error) {
	rec, err := s.claims.Get(ctx, userID, tierID)
	if errors.Is(err, domain.ErrClaimNotFound) {
		return domain.StateUnclaimed, nil, nil
	}
	if err != nil {
		return domain.StateUnclaimed, nil, err
	}
	return domain.StateClaimed, rec, nil
}

func classify(err error) string {
	switch {
	case err == nil:
		return outcomeCreated
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return outcomeAlreadyClaimed
	case errors.Is(err, domain.ErrNotEligible):
		return outcomeNotEligible
	case errors.Is(err, domain.ErrInvalidInput):
		return outcomeInvalid
	case errors.Is(err, domain.ErrStorageUnavailable):
		return outcomeUnavailable
	default:
		return outcomeError
	}
}
