// Package receiver is the public HTTP endpoint that authenticates webhook
// submissions and forwards them to the worker over the relay.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"
	"guild-intake/internal/common/metrics"
	"guild-intake/internal/common/validation"
	"guild-intake/internal/models"
	"guild-intake/internal/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const SubmitPath = "/submit_application"

// Relay is the worker-facing side of a submission.
type Relay interface {
	SubmitApplication(ctx context.Context, payload models.SubmissionPayload) (*models.Ack, relay.Outcome, error)
}

type Config struct {
	APIKey       string
	RelayTimeout time.Duration
	MaxBodyBytes int64
}

type Handler struct {
	config    *Config
	relay     Relay
	validator *validation.Validator
	logger    logger.Logger
}

func NewHandler(config *Config, relayClient Relay, validator *validation.Validator, log logger.Logger) *Handler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1024 * 1024
	}
	return &Handler{
		config:    config,
		relay:     relayClient,
		validator: validator,
		logger:    log.WithFields(map[string]interface{}{"component": "receiver"}),
	}
}

// Routes returns the receiver's router: the webhook, a liveness probe and
// Prometheus metrics.
func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Post(SubmitPath, h.SubmitApplication)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// SubmitApplication authenticates, validates and relays one submission.
// The caller only ever sees a status line: the worker's acknowledgement on
// success, a generic status text otherwise.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithFields(map[string]interface{}{
		"requestId": middleware.GetReqID(r.Context()),
		"remote":    r.RemoteAddr,
	})

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		log.Warn("Failed to read request body", map[string]interface{}{"error": err})
		h.reply(w, http.StatusBadRequest, "bad_request", "")
		return
	}

	var req models.SubmissionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Warn("Unparseable submission body", map[string]interface{}{"error": err})
		h.reply(w, http.StatusBadRequest, "bad_request", "")
		return
	}

	// The key is checked before anything else touches the payload.
	if h.config.APIKey == "" || req.Key != h.config.APIKey {
		log.Warn("Submission rejected: invalid key", map[string]interface{}{
			"keyLength": len(req.Key),
		})
		h.reply(w, http.StatusBadRequest, "unauthorized", "")
		return
	}

	if result := h.validator.ValidateJSON(body); !result.Valid {
		log.Warn("Submission failed schema validation", map[string]interface{}{
			"fields": result.Fields(),
			"errors": result.Errors,
		})
		h.reply(w, http.StatusBadRequest, "bad_request", "")
		return
	}

	payload := req.SubmissionPayload
	log = log.WithFields(map[string]interface{}{
		"applicant": payload.ApplicantName,
		"questions": len(payload.Questions),
	})

	ctx := r.Context()
	if h.config.RelayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.RelayTimeout)
		defer cancel()
	}

	start := time.Now()
	ack, outcome, err := h.relay.SubmitApplication(ctx, payload)
	fields := map[string]interface{}{
		"outcome":    outcome.String(),
		"durationMs": time.Since(start).Milliseconds(),
	}

	switch outcome {
	case relay.OutcomeAccepted:
		fields["channel"] = ack.Channel
		fields["posted"] = ack.Posted
		log.Info("Submission accepted", fields)
		h.reply(w, http.StatusOK, outcome.String(), ack.Acknowledgement)

	case relay.OutcomeRejected:
		stdErr := apperrors.Normalize(err)
		fields["errorCode"] = string(stdErr.Code)
		fields["details"] = stdErr.Details
		log.Error("Submission rejected by worker", fields)
		h.reply(w, http.StatusInternalServerError, outcome.String(), "")

	default:
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			fields["details"] = stdErr.Details
		}
		log.Error("Relay transport failure; worker side effects unknown", fields)
		h.reply(w, http.StatusBadGateway, outcome.String(), "")
	}
}

// reply writes a plain-text status. An empty body falls back to the
// standard status text.
func (h *Handler) reply(w http.ResponseWriter, status int, outcome, body string) {
	metrics.IntakeSubmissions.WithLabelValues(outcome).Inc()
	if body == "" {
		body = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
