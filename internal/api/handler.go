package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-fisheries/gannet/internal/consolidate"
	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *consolidate.Engine
	alerts  *rules.Engine
	refdata *refdata.Cache
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *consolidate.Engine, alerts *rules.Engine, ref *refdata.Cache, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		alerts:  alerts,
		refdata: ref,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// IngestLanding handles POST /landings. The landing is stored verbatim;
// consolidation picks it up on the next batch or retrospective run.
func (h *Handler) IngestLanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var landing domain.Landing
	if err := json.NewDecoder(r.Body).Decode(&landing); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if landing.ID == "" || landing.RSSNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and rssNumber are required",
		})
		return
	}
	if landing.LandedAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "landedAt is required",
		})
		return
	}

	if err := h.repo.SaveLanding(ctx, &landing); err != nil {
		slog.Error("failed to save landing", "id", landing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save landing",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id": landing.ID,
	})
}

// certificateEvent is the payload published on certificate lifecycle topics.
type certificateEvent struct {
	DocumentNumber string `json:"documentNumber"`
	TraceID        string `json:"traceId,omitempty"`
}

// SubmitCertificate handles POST /certificates. The certificate is persisted
// and, when COMPLETE, a submitted event is published for the worker to
// consolidate the affected landing groups.
func (h *Handler) SubmitCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cert domain.Certificate
	if err := json.NewDecoder(r.Body).Decode(&cert); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if cert.DocumentNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentNumber is required",
		})
		return
	}
	if cert.Status == "" {
		cert.Status = domain.CertStatusComplete
	}

	if err := h.repo.SaveCertificate(ctx, &cert); err != nil {
		slog.Error("failed to save certificate", "document_number", cert.DocumentNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save certificate",
		})
		return
	}

	if cert.Status == domain.CertStatusComplete {
		h.publishCertificateEvent(ctx, domain.TopicCertificateSubmitted, cert.DocumentNumber)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"documentNumber": cert.DocumentNumber,
		"status":         string(cert.Status),
	})
}

// VoidCertificate handles POST /certificates/{number}/void. The certificate
// moves to VOID and its usages are retracted from any consolidated landings.
func (h *Handler) VoidCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	documentNumber := chi.URLParam(r, "number")

	if documentNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "document number is required",
		})
		return
	}

	if err := h.repo.UpdateCertificateStatus(ctx, documentNumber, domain.CertStatusVoid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "certificate not found",
			})
			return
		}
		slog.Error("failed to void certificate", "document_number", documentNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to void certificate",
		})
		return
	}

	h.publishCertificateEvent(ctx, domain.TopicCertificateVoided, documentNumber)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"documentNumber": documentNumber,
		"status":         string(domain.CertStatusVoid),
	})
}

func (h *Handler) publishCertificateEvent(ctx context.Context, topic, documentNumber string) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(certificateEvent{
		DocumentNumber: documentNumber,
		TraceID:        GetTraceID(ctx),
	})
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish certificate event",
			"topic", topic,
			"document_number", documentNumber,
			"error", err,
		)
	}
}

// PreApprove handles POST /pre-approvals. Pre-approved documents are exempt
// from the overuse gate unless another certificate also references the group.
func (h *Handler) PreApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		DocumentNumber string `json:"documentNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentNumber == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "documentNumber is required",
		})
		return
	}

	if err := h.repo.SavePreApproval(ctx, req.DocumentNumber); err != nil {
		slog.Error("failed to save pre-approval", "document_number", req.DocumentNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save pre-approval",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"documentNumber": req.DocumentNumber,
	})
}

// ConsolidateRequest is the request body for POST /jobs/consolidate.
type ConsolidateRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RunConsolidation handles POST /jobs/consolidate: a synchronous batch run
// over a landed-date range.
// DeleteConsolidatedRange clears all consolidated documents whose landed day
// falls inside the given range, so the range can be rebuilt from scratch.
func (h *Handler) DeleteConsolidatedRange(w http.ResponseWriter, r *http.Request) {
	start, err := time.ParseInLocation(domain.DateFormat, r.URL.Query().Get("startDate"), time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "startDate must be a date in the form " + domain.DateFormat,
		})
		return
	}
	end, err := time.ParseInLocation(domain.DateFormat, r.URL.Query().Get("endDate"), time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "endDate must be a date in the form " + domain.DateFormat,
		})
		return
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "endDate must not be before startDate",
		})
		return
	}

	if err := h.repo.DeleteConsolidatedLandingsInRange(r.Context(), start, end); err != nil {
		slog.Error("failed to delete consolidated range", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete consolidated landings",
		})
		return
	}

	slog.Info("consolidated range cleared",
		"start", r.URL.Query().Get("startDate"),
		"end", r.URL.Query().Get("endDate"),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) RunConsolidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConsolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	start, err := time.ParseInLocation(domain.DateFormat, req.Start, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "start must be a date in the form " + domain.DateFormat,
		})
		return
	}
	end, err := time.ParseInLocation(domain.DateFormat, req.End, time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "end must be a date in the form " + domain.DateFormat,
		})
		return
	}
	if end.Before(start) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "end must not be before start",
		})
		return
	}

	// Cover the whole final day.
	end = end.Add(24*time.Hour - time.Nanosecond)

	jobStart := time.Now()
	summary, err := h.engine.RunBatch(ctx, start, end)
	if err != nil {
		slog.Error("consolidation batch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "consolidation batch failed: " + err.Error(),
			"summary": summary,
		})
		return
	}

	slog.Info("consolidation batch complete",
		"start", req.Start,
		"end", req.End,
		"landings", summary.LandingsFetched,
		"upserted", summary.Upserted,
		"deleted", summary.Deleted,
		"duration_ms", time.Since(jobStart).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, summary)
}

// RunRetrospective handles POST /jobs/retrospective: re-consolidates every
// landing group still inside its retrospective period.
func (h *Handler) RunRetrospective(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.RunRetrospective(r.Context())
	if err != nil {
		slog.Error("retrospective run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "retrospective run failed: " + err.Error(),
			"summary": summary,
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetRetrospective handles GET /retrospective: lists the (RSS number, day)
// keys a retrospective run would touch, without running it.
func (h *Handler) GetRetrospective(w http.ResponseWriter, r *http.Request) {
	keys, err := h.engine.GetRetrospectivelyAffected(r.Context())
	if err != nil {
		slog.Error("failed to list retrospectively affected keys", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list retrospectively affected keys",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// ListConsolidated handles GET /consolidated.
func (h *Handler) ListConsolidated(w http.ResponseWriter, r *http.Request) {
	var (
		docs []*domain.ConsolidatedLanding
		err  error
	)
	if doc := r.URL.Query().Get("document"); doc != "" {
		docs, err = h.repo.FindConsolidatedLandingsByDocument(r.Context(), doc)
	} else {
		docs, err = h.repo.ListConsolidatedLandings(r.Context())
	}
	if err != nil {
		slog.Error("failed to list consolidated landings", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list consolidated landings",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consolidatedLandings": docs,
		"count":                len(docs),
	})
}

// GetConsolidated handles GET /consolidated/{pln}/{date}.
func (h *Handler) GetConsolidated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pln := chi.URLParam(r, "pln")

	date, err := time.ParseInLocation(domain.DateFormat, chi.URLParam(r, "date"), time.UTC)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "date must be in the form " + domain.DateFormat,
		})
		return
	}

	doc, err := h.repo.FindConsolidatedLanding(ctx, pln, date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "consolidated landing not found",
			})
			return
		}
		slog.Error("failed to get consolidated landing", "pln", pln, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get consolidated landing",
		})
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// RefreshRefData handles POST /refdata/refresh: re-runs every loader and
// swaps the snapshot.
func (h *Handler) RefreshRefData(w http.ResponseWriter, r *http.Request) {
	if err := h.refdata.Refresh(r.Context()); err != nil {
		slog.Error("reference data refresh failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "reference data refresh failed: " + err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "reference data refreshed",
	})
}

// PurgeRefData handles POST /refdata/purge: drops the snapshot so the next
// read repopulates from the loaders.
func (h *Handler) PurgeRefData(w http.ResponseWriter, r *http.Request) {
	h.refdata.Purge()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "reference data purged",
	})
}

// SaveVessel handles POST /refdata/vessels.
func (h *Handler) SaveVessel(w http.ResponseWriter, r *http.Request) {
	var v domain.Vessel
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if v.RSSNumber == "" || v.PLN == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rssNumber and pln are required",
		})
		return
	}

	if err := h.repo.SaveVessel(r.Context(), v); err != nil {
		slog.Error("failed to save vessel", "rss_number", v.RSSNumber, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save vessel",
		})
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

// SaveVesselOfInterest handles POST /refdata/vessels-of-interest.
func (h *Handler) SaveVesselOfInterest(w http.ResponseWriter, r *http.Request) {
	var v domain.VesselOfInterest
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.PLN == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "pln is required",
		})
		return
	}

	if err := h.repo.SaveVesselOfInterest(r.Context(), v); err != nil {
		slog.Error("failed to save vessel of interest", "pln", v.PLN, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save vessel of interest",
		})
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

// SaveWeighting handles PUT /refdata/weighting. Exactly one weighting row is
// live; a save replaces it.
func (h *Handler) SaveWeighting(w http.ResponseWriter, r *http.Request) {
	var weighting domain.Weighting
	if err := json.NewDecoder(r.Body).Decode(&weighting); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.repo.SaveWeighting(r.Context(), weighting); err != nil {
		slog.Error("failed to save weighting", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save weighting",
		})
		return
	}

	writeJSON(w, http.StatusOK, weighting)
}

// SaveSpeciesAlias handles POST /refdata/species-aliases.
func (h *Handler) SaveSpeciesAlias(w http.ResponseWriter, r *http.Request) {
	var alias domain.SpeciesAlias
	if err := json.NewDecoder(r.Body).Decode(&alias); err != nil || alias.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code is required",
		})
		return
	}

	if err := h.repo.SaveSpeciesAlias(r.Context(), alias); err != nil {
		slog.Error("failed to save species alias", "code", alias.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save species alias",
		})
		return
	}

	writeJSON(w, http.StatusCreated, alias)
}

// SaveConversionFactor handles POST /refdata/conversion-factors.
func (h *Handler) SaveConversionFactor(w http.ResponseWriter, r *http.Request) {
	var factor domain.ConversionFactor
	if err := json.NewDecoder(r.Body).Decode(&factor); err != nil || factor.Species == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "species is required",
		})
		return
	}

	if err := h.repo.SaveConversionFactor(r.Context(), factor); err != nil {
		slog.Error("failed to save conversion factor", "species", factor.Species, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save conversion factor",
		})
		return
	}

	writeJSON(w, http.StatusCreated, factor)
}

// SaveExporterBehaviour handles POST /refdata/exporter-behaviour.
func (h *Handler) SaveExporterBehaviour(w http.ResponseWriter, r *http.Request) {
	var behaviour domain.ExporterBehaviour
	if err := json.NewDecoder(r.Body).Decode(&behaviour); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.repo.SaveExporterBehaviour(r.Context(), behaviour); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "accountId or contactId is required",
			})
			return
		}
		slog.Error("failed to save exporter behaviour", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save exporter behaviour",
		})
		return
	}

	writeJSON(w, http.StatusCreated, behaviour)
}

// ListRules returns all loaded alert rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.alerts.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.alerts.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Expression  string            `json:"expression"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new alert rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.alerts.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all alert rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.alerts.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
