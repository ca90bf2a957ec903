package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tallyhq/tally/pkg/budget"
	"github.com/tallyhq/tally/pkg/httputil"
	"github.com/tallyhq/tally/pkg/metering"
	"github.com/tallyhq/tally/pkg/optimizer"
)

type recordEventRequest struct {
	TenantID    string                 `json:"tenant_id"`
	Service     string                 `json:"service"`
	Operation   string                 `json:"operation"`
	AmountCents int64                  `json:"amount_cents"`
	Units       float64                `json:"units,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// recordEvent accepts a cost event for metering. It answers 202: the
// event is buffered, not yet durable, and metering never fails the
// caller.
func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.TenantID == "" || req.Service == "" || req.Operation == "" {
		httputil.WriteBadRequest(w, "tenant_id, service and operation are required")
		return
	}
	if req.AmountCents < 0 {
		httputil.WriteBadRequest(w, "amount_cents must not be negative")
		return
	}

	s.meter.Record(r.Context(), metering.CostEvent{
		TenantID:    req.TenantID,
		Service:     req.Service,
		Operation:   req.Operation,
		AmountCents: req.AmountCents,
		Units:       req.Units,
		Metadata:    req.Metadata,
		TrackedAt:   time.Now().UTC(),
	})

	httputil.WriteAccepted(w, map[string]string{"status": "recorded"})
}

// getSpend returns the tenant's realtime spend for a day (today by
// default). An absent aggregate means zero spend, not an error.
func (s *Server) getSpend(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httputil.WriteBadRequest(w, "date must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	agg, err := s.spend.Get(r.Context(), tenantID, day)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	resp := map[string]interface{}{
		"tenant_id":   tenantID,
		"date":        day.Format("2006-01-02"),
		"total_cents": int64(0),
		"by_service":  map[string]int64{},
	}
	if agg != nil {
		resp["total_cents"] = agg.TotalCents
		resp["by_service"] = agg.ByService
	}
	httputil.WriteSuccess(w, resp)
}

type admissionRequest struct {
	// Either a pre-computed estimate...
	EstimateCents int64 `json:"estimate_cents,omitempty"`
	// ...or the operation shape to estimate from.
	MediaType string   `json:"media_type,omitempty"`
	SizeBytes int64    `json:"size_bytes,omitempty"`
	Features  []string `json:"features,omitempty"`
}

// checkAdmission runs the pre-flight budget check for a prospective
// operation
func (s *Server) checkAdmission(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	var req admissionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	estimate := req.EstimateCents
	if estimate == 0 && req.SizeBytes > 0 {
		features := make([]optimizer.Feature, len(req.Features))
		for i, f := range req.Features {
			features[i] = optimizer.Feature(f)
		}
		estimate = s.estimator.Estimate(optimizer.EstimateRequest{
			MediaType: optimizer.MediaType(req.MediaType),
			SizeBytes: req.SizeBytes,
			Features:  features,
		})
	}
	if estimate < 0 {
		httputil.WriteBadRequest(w, "estimate_cents must not be negative")
		return
	}

	decision := s.enforcer.WouldExceed(r.Context(), tenantID, estimate)
	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id":      tenantID,
		"estimate_cents": estimate,
		"skip":           decision.Skip,
		"reason":         decision.Reason,
	})
}

// getBudget returns the tenant's budget config, with tier defaults for
// tenants that never configured one
func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	cfg, err := s.budgets.Get(r.Context(), tenantID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if cfg == nil {
		cfg = budget.DefaultConfig(tenantID, budget.TierFree)
	}
	httputil.WriteSuccess(w, cfg)
}

type putBudgetRequest struct {
	Tier               string  `json:"tier,omitempty"`
	MonthlyBudgetCents int64   `json:"monthly_budget_cents"`
	AlertThresholds    []int64 `json:"alert_thresholds,omitempty"`
}

func (s *Server) putBudget(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	var req putBudgetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.MonthlyBudgetCents < 0 {
		httputil.WriteBadRequest(w, "monthly_budget_cents must not be negative")
		return
	}
	for _, threshold := range req.AlertThresholds {
		if threshold <= 0 || threshold > 200 {
			httputil.WriteBadRequest(w, "alert thresholds must be percentages between 1 and 200")
			return
		}
	}

	cfg := &budget.Config{
		TenantID:           tenantID,
		Tier:               budget.Tier(req.Tier),
		MonthlyBudgetCents: req.MonthlyBudgetCents,
		AlertThresholds:    req.AlertThresholds,
	}
	if err := s.budgets.Put(r.Context(), cfg); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

// getPlan returns the processing plan for the tenant's tier
func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	tier := budget.TierFree
	if cfg, err := s.budgets.Get(r.Context(), tenantID); err == nil && cfg != nil {
		tier = cfg.Tier
	}
	httputil.WriteSuccess(w, optimizer.SelectPlan(tier))
}

// reportWindow parses the optional from/to query parameters, defaulting
// to the current month so far. ok is false when a bad date was already
// answered with a 400.
func reportWindow(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	now := time.Now().UTC()
	from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to = now

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			httputil.WriteBadRequest(w, "from must be formatted YYYY-MM-DD")
			return from, to, false
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			httputil.WriteBadRequest(w, "to must be formatted YYYY-MM-DD")
			return from, to, false
		}
	}
	return from, to, true
}

// getReport aggregates historical spend over [from, to)
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	from, to, ok := reportWindow(w, r)
	if !ok {
		return
	}

	report, err := s.reports.Usage(r.Context(), tenantID, from, to)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, report)
}

// getEfficiency scores a tenant's window with the configured scoring
// policy. The caller supplies its observed dedup hit rate; absent that,
// the score assumes no reuse.
func (s *Server) getEfficiency(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]

	from, to, ok := reportWindow(w, r)
	if !ok {
		return
	}

	hitRate := 0.0
	if raw := r.URL.Query().Get("cache_hit_rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			httputil.WriteBadRequest(w, "cache_hit_rate must be a number between 0 and 1")
			return
		}
		hitRate = parsed
	}

	score, err := s.reports.Efficiency(r.Context(), tenantID, from, to, hitRate, s.policy)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"tenant_id":      tenantID,
		"from":           from,
		"to":             to,
		"cache_hit_rate": hitRate,
		"score":          score,
	})
}
