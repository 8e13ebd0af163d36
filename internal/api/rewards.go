package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/observability"
)

// ─── Rewards API ────────────────────────────────────────────────────────────
//
// GET  /api/tiers                            tier table
// GET  /api/settings                         reward settings in effect
// GET  /api/users/{id}/rewards               progress for every tier
// GET  /api/users/{id}/rewards/{tier}        progress for one tier
// POST /api/users/{id}/rewards/{tier}/claim  settle a tier
// GET  /api/users/{id}/claims                claim history

// tierView is one tier's progress as shown to the member.
type tierView struct {
	eligibility.Evaluation
	Tier    string `json:"tier"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

func newTierView(ev eligibility.Evaluation, flags domain.ClaimFlags) tierView {
	v := tierView{Evaluation: ev, Tier: ev.TierID.String(), State: domain.StateUnclaimed.Label()}
	if flags.Has(ev.TierID) {
		v.State = domain.StateClaimed.Label()
	}
	if ev.Explanation != nil {
		v.Message = ev.Explanation.String()
	}
	return v
}

type rewardsResponse struct {
	UserID         string                  `json:"user_id"`
	ReferencePrice float64                 `json:"reference_price"`
	Counts         eligibility.CountVector `json:"counts"`
	Descendants    int                     `json:"descendants"`
	Tiers          []tierView              `json:"tiers"`
	Flags          domain.ClaimFlags       `json:"flags"`
	TakenAt        time.Time               `json:"taken_at"`
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tiers": domain.Tiers()})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	rs, err := s.settings.RewardSettings(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"spans": s.tracer.Spans(limit),
		"total": s.tracer.SpanCount(),
	})
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) (*eligibility.Report, domain.ClaimFlags, bool) {
	userID := chi.URLParam(r, "id")
	rep, err := s.engine.Report(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, domain.ClaimFlags{}, false
	}
	// Records are the source of truth for flags.
	flags, err := s.claims.Flags(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, domain.ClaimFlags{}, false
	}
	return rep, flags, true
}

func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	rep, flags, ok := s.report(w, r)
	if !ok {
		return
	}
	views := make([]tierView, len(rep.Tiers))
	for i, ev := range rep.Tiers {
		views[i] = newTierView(ev, flags)
	}
	writeJSON(w, http.StatusOK, rewardsResponse{
		UserID:         rep.UserID,
		ReferencePrice: rep.ReferencePrice,
		Counts:         rep.Counts,
		Descendants:    rep.Descendants,
		Tiers:          views,
		Flags:          flags,
		TakenAt:        rep.TakenAt,
	})
}

func (s *Server) handleRewardTier(w http.ResponseWriter, r *http.Request) {
	tierID, err := domain.ParseTierID(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rep, flags, ok := s.report(w, r)
	if !ok {
		return
	}
	ev, _ := rep.Tier(tierID)
	writeJSON(w, http.StatusOK, newTierView(ev, flags))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	tierID, err := domain.ParseTierID(chi.URLParam(r, "tier"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	rec, err := s.claims.Claim(r.Context(), userID, tierID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]any{
			"claim":           rec,
			"already_claimed": false,
		})
	case domain.IsSettled(err):
		writeJSON(w, http.StatusOK, map[string]any{
			"claim":           rec,
			"already_claimed": true,
		})
	default:
		s.writeDomainError(w, r, err)
	}
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	recs, err := s.claims.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if recs == nil {
		recs = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": recs})
}

// writeDomainError maps domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notEligible *domain.NotEligibleError
		unavailable *domain.StorageUnavailableError
	)
	switch {
	case errors.Is(err, domain.ErrUnknownTier):
		writeError(w, http.StatusNotFound, "unknown_tier", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
	case errors.As(err, &notEligible):
		details := map[string]any{"progress_percent": notEligible.Progress}
		if notEligible.Missing != nil {
			details["explanation"] = notEligible.Missing
		}
		writeError(w, http.StatusConflict, "not_eligible", err.Error(), details)
	case errors.As(err, &unavailable):
		s.log.Warn("api: storage unavailable", "op", unavailable.Op, "error", unavailable.Err, observability.LogAttr(r.Context()))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable, retry the request", nil)
	default:
		s.log.Error("api: request failed", "path", r.URL.Path, "error", err, observability.LogAttr(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}
