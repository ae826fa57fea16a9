package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/logging"
	"github.com/dmitrijs2005/authconnector/internal/metrics"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// MaxPayloadBytes bounds a webhook request body.
const MaxPayloadBytes = 10 << 20

// RouterDeps collects what NewRouter needs.
type RouterDeps struct {
	Dispatcher  *Dispatcher
	Credentials tenant.Credentials
	// Leeway tolerates clock skew when checking token expiry.
	Leeway time.Duration

	// RequestsPerSecond limits webhook calls; 0 disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer
	Metrics  metrics.Recorder
	Logger   logging.Logger
}

// NewRouter wires the webhook, health and metrics routes.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopRecorder{}
	}
	h := &webhookHandler{d: deps.Dispatcher, rec: deps.Metrics, logger: deps.Logger.With("module", "webhook")}

	r := chi.NewRouter()
	r.Use(Recovery(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		if deps.RequestsPerSecond > 0 {
			burst := deps.Burst
			if burst <= 0 {
				burst = 1
			}
			r.Use(RateLimit(rate.NewLimiter(rate.Limit(deps.RequestsPerSecond), burst), deps.Logger))
		}
		r.With(Authenticate(deps.Credentials, deps.Leeway, deps.Logger)).
			Post("/connector/webhook/{key}", h.ServeHTTP)
	})

	return r
}

type webhookHandler struct {
	d      *Dispatcher
	rec    metrics.Recorder
	logger logging.Logger
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	status := h.serve(w, r, key)
	h.rec.RecordWebhook(key, status)
	h.logger.Info(ctx, "webhook handled", "key", key, "status", status)
}

func (h *webhookHandler) serve(w http.ResponseWriter, r *http.Request, key string) int {
	ctx := r.Context()

	if !h.d.Has(key) {
		return writeError(w, http.StatusNotFound, `Webhook with key "`+key+`" cannot be found.`, nil)
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeError(w, http.StatusRequestEntityTooLarge, "payload is too large", nil)
		}
		return writeError(w, http.StatusBadRequest, "cannot read payload", nil)
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return writeError(w, http.StatusBadRequest, "payload must be a JSON object", nil)
	}

	out, err := h.d.Dispatch(ctx, key, payload)
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			return writeError(w, http.StatusUnprocessableEntity, "The given data was invalid.", ve.Fields)
		case errors.Is(err, ErrUnknownWebhook):
			return writeError(w, http.StatusNotFound, err.Error(), nil)
		default:
			h.logger.Error(ctx, "webhook failed", "key", key, "error", err)
			return writeError(w, http.StatusInternalServerError, err.Error(), nil)
		}
	}

	body := map[string]any{"status": "success"}
	if out != nil {
		body["data"] = out
	}
	return writeJSON(w, http.StatusOK, body)
}

type errorResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Errors  models.FieldErrors `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, fields models.FieldErrors) int {
	return writeJSON(w, status, errorResponse{Status: "error", Message: msg, Errors: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) int {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
	return status
}
