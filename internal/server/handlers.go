package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/bunrui/internal/model"
)

// CategoryResolver maps domains to category labels.
type CategoryResolver interface {
	Resolve(ctx context.Context, domains []string) map[string]string
}

// SummaryLedger stores and queries category-usage summaries.
type SummaryLedger interface {
	Submit(ctx context.Context, timestamp, userID string, summary map[string]float64) error
	Query(ctx context.Context, day, userID string) ([]model.SummaryRecord, error)
}

// UsageLedger records per-user API usage.
type UsageLedger interface {
	Record(ctx context.Context, userID string, eventTimeMillis, callsDelta int64, costDelta float64) (model.UsageRecord, error)
	Dump(ctx context.Context) (model.UsageLedger, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	resolver    CategoryResolver
	summaries   SummaryLedger
	usage       UsageLedger
	storage     Pinger
	logger      *slog.Logger
	startedAt   time.Time
	version     string
	openapiSpec []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Storage, OpenAPISpec.
type HandlersDeps struct {
	Resolver    CategoryResolver
	Summaries   SummaryLedger
	Usage       UsageLedger
	Storage     Pinger
	Logger      *slog.Logger
	Version     string
	OpenAPISpec []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		resolver:    d.Resolver,
		summaries:   d.Summaries,
		usage:       d.Usage,
		storage:     d.Storage,
		logger:      d.Logger,
		startedAt:   time.Now(),
		version:     d.Version,
		openapiSpec: d.OpenAPISpec,
	}
}

// HandleCategoryMapping handles POST /get-category-mapping.
// Classification failures never fail the request: affected domains map to
// "Uncategorized". A body without domains is an empty batch.
func (h *Handlers) HandleCategoryMapping(w http.ResponseWriter, r *http.Request) {
	var req model.CategoryMappingRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.resolver.Resolve(r.Context(), req.Domains))
}

// HandleSubmitSummary handles POST /submit-category-summary.
func (h *Handlers) HandleSubmitSummary(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitSummaryRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.summaries.Submit(r.Context(), req.Timestamp, req.UserID, req.CategorySummary); err != nil {
		h.writeServiceError(w, r, "submit summary", err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "success"})
}

// HandleSummaryHistory handles GET /get-summary-history?day=YYYY-MM-DD[&userId=].
func (h *Handlers) HandleSummaryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := h.summaries.Query(r.Context(), q.Get("day"), q.Get("userId"))
	if err != nil {
		h.writeServiceError(w, r, "summary history", err)
		return
	}

	items := make([]model.SummaryHistoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, model.SummaryHistoryItem{
			Timestamp: rec.Timestamp,
			UserID:    rec.UserID,
			Summary:   rec.Summary,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleTrackUsage handles POST /track-usage.
func (h *Handlers) HandleTrackUsage(w http.ResponseWriter, r *http.Request) {
	var req model.TrackUsageRequest
	if err := decodeJSON(r, &req); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.UserID == "" || req.Timestamp == 0 || req.Usage == nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingFields, "userId, timestamp and usage are required")
		return
	}

	if _, err := h.usage.Record(r.Context(), req.UserID, req.Timestamp, req.Usage.LLMCall, req.Usage.Cost); err != nil {
		h.writeServiceError(w, r, "track usage", err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "success", UserID: req.UserID})
}

// HandleUsage handles GET /usage.
func (h *Handlers) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.usage.Dump(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "usage dump", err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Storage: "connected",
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK
	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			h.logger.Warn("health: storage ping failed", "error", err)
			resp.Status = "unhealthy"
			resp.Storage = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeServiceError maps the model error taxonomy onto HTTP status codes.
// Unexpected errors are logged and answered with a generic message.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, model.ErrMissingFields):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeMissingFields, err.Error())
	case errors.Is(err, model.ErrInvalidTimestamp):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidTimestamp, err.Error())
	case errors.Is(err, model.ErrInvalidDate):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidDate, model.ErrInvalidDate.Error())
	case errors.Is(err, model.ErrInvalidUsage):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidUsage, model.ErrInvalidUsage.Error())
	case errors.Is(err, model.ErrPersistence):
		h.logger.Error(op+": persistence failure", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodePersistenceFailure, "storage unavailable")
	default:
		h.logger.Error(op+": unexpected error", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
	}
}
