package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/telhawk-systems/proximity-stack/common/database"
	"github.com/telhawk-systems/proximity-stack/common/httputil"
	"github.com/telhawk-systems/proximity-stack/common/logging"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/models"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/query"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/ratelimit"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/sensorerr"
)

const (
	APITitle   = "Proximity Sensor API"
	APIVersion = "v0.1"

	savedMessage = "Data saved successfully!"
)

// Ingester persists a POSTed envelope body.
type Ingester interface {
	IngestBytes(ctx context.Context, body []byte) (*models.SensorRecord, error)
}

// Querier answers paginated record queries.
type Querier interface {
	Query(ctx context.Context, q models.QueryFilter) (*models.Page, error)
}

// Pinger reports store reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the request limits and pagination defaults for the records
// endpoints.
type Config struct {
	// MaxBodyBytes bounds POST bodies; larger requests get 413.
	MaxBodyBytes int64
	Query        query.Defaults
}

// SensorHandler serves POST and GET /sensor-records plus the health and
// readiness probes.
type SensorHandler struct {
	ingester Ingester
	querier  Querier
	store    Pinger
	limiter  ratelimit.RateLimiter
	cfg      Config
	logger   *logging.Logger
}

// NewSensorHandler wires the HTTP surface. limiter may be nil.
func NewSensorHandler(ingester Ingester, querier Querier, store Pinger, limiter ratelimit.RateLimiter, cfg Config, logger *logging.Logger) *SensorHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Query.PageSize <= 0 {
		cfg.Query = query.DefaultDefaults()
	}
	return &SensorHandler{
		ingester: ingester,
		querier:  querier,
		store:    store,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Records serves the sensor record collection: POST ingests an envelope,
// GET lists stored records.
func (h *SensorHandler) Records(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *SensorHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := httputil.GetClientIP(r)

	allowed, err := h.limiter.Allow(ctx, clientIP)
	if err != nil {
		// Fail open when the limiter is unreachable.
		h.logger.WarnContext(ctx, "rate limiter unavailable", logging.Error(err))
	} else if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if _, err := h.ingester.IngestBytes(ctx, body); err != nil {
		writeKindError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"message": savedMessage})
}

type pageMeta struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       int  `json:"total"`
	NumPages    int  `json:"num_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

type listResponse struct {
	Data []*models.SensorRecord `json:"data"`
	Meta pageMeta               `json:"meta"`
}

func (h *SensorHandler) list(w http.ResponseWriter, r *http.Request) {
	raw := query.RawParams{
		SensorID:  param(r, query.ParamSensorID),
		StartTime: param(r, query.ParamStartTime),
		EndTime:   param(r, query.ParamEndTime),
		Page:      param(r, query.ParamPage),
		PageSize:  param(r, query.ParamPageSize),
	}

	filter, err := query.ParseFilter(raw, h.cfg.Query)
	if err != nil {
		writeKindError(w, err)
		return
	}

	page, err := h.querier.Query(r.Context(), filter)
	if err != nil {
		writeKindError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Data: page.Records,
		Meta: pageMeta{
			Page:        page.Page,
			PageSize:    page.PageSize,
			Total:       page.Total,
			NumPages:    page.NumPages,
			HasNext:     page.HasNext,
			HasPrevious: page.HasPrevious,
		},
	})
}

func param(r *http.Request, key string) query.Param {
	v, ok := httputil.QueryParam(r, key)
	return query.Param{Value: v, Set: ok}
}

// writeKindError maps a classified error to its status and body. Caller
// errors carry kind and field; system errors only a message.
func writeKindError(w http.ResponseWriter, err error) {
	kind := sensorerr.KindOf(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		httputil.WriteError(w, status, "internal error: "+sensorerr.Message(err))
		return
	}

	body := map[string]string{
		"error": sensorerr.Message(err),
		"kind":  kind.String(),
	}
	if field := sensorerr.FieldOf(err); field != "" {
		body["field"] = field
	}
	httputil.WriteJSON(w, status, body)
}

func (h *SensorHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *SensorHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := database.PingContext(r.Context())
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", logging.Error(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Index describes the API.
func (h *SensorHandler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"title":   APITitle,
		"version": APIVersion,
		"endpoints": []endpoint{
			{http.MethodPost, "/sensor-records", "Ingest a base64-encoded push envelope"},
			{http.MethodGet, "/sensor-records", "List records; filters sensor_id, start_time, end_time; pagination page, page_size"},
			{http.MethodGet, "/healthz", "Liveness"},
			{http.MethodGet, "/readyz", "Readiness, including the record store"},
			{http.MethodGet, "/metrics", "Prometheus metrics"},
		},
	})
}
