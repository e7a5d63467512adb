// internal/workers/application/submit-application/handler.go
package submitapplication

import (
	"context"
	"sync/atomic"
	"time"

	"guild-intake/internal/common/armory"
	"guild-intake/internal/common/discord"
	apperrors "guild-intake/internal/common/errors"
	"guild-intake/internal/common/logger"
	"guild-intake/internal/common/metrics"
	"guild-intake/internal/common/observability"
	"guild-intake/internal/models"
	"guild-intake/internal/relay"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	TaskType = models.CommandSubmitApplication
)

type Provisioner interface {
	EnsureChannel(ctx context.Context, target discord.Target, name string) (*discord.Channel, bool, error)
}

type ImageResolver interface {
	ResolveRef(ctx context.Context, ref armory.ProfileRef, profileURL string) (string, error)
}

type Poster interface {
	SendMessage(ctx context.Context, channelID string, msg discord.Message) error
}

type Handler struct {
	config      *Config
	provisioner Provisioner
	resolver    ImageResolver
	poster      Poster
	obs         *observability.Observability
	logger      logger.Logger

	// target is nil until the workspace session is ready.
	target atomic.Pointer[discord.Target]
}

func NewHandler(config *Config, provisioner Provisioner, resolver ImageResolver, poster Poster, obs *observability.Observability, log logger.Logger) *Handler {
	if obs == nil {
		obs = observability.NewNoop()
	}
	return &Handler{
		config:      config,
		provisioner: provisioner,
		resolver:    resolver,
		poster:      poster,
		obs:         obs,
		logger:      log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Ready publishes the resolved guild and category. Submissions that arrive
// before the first call fail with SESSION_NOT_READY.
func (h *Handler) Ready(target discord.Target) {
	t := target
	h.target.Store(&t)
	h.logger.Info("Workspace ready", map[string]interface{}{
		"guild":    target.GuildName,
		"category": target.CategoryName,
	})
}

// IsReady reports whether Ready has been called.
func (h *Handler) IsReady() bool {
	return h.target.Load() != nil
}

// Handle is the relay entry point: it decodes the CBOR payload and runs
// Execute.
func (h *Handler) Handle(ctx context.Context, payload relay.RawMessage) (any, error) {
	var input models.SubmissionPayload
	if err := relay.Unmarshal(payload, &input); err != nil {
		return nil, apperrors.NewMalformedInputError("payload", err.Error())
	}
	return h.Execute(ctx, &input)
}

func (h *Handler) Execute(ctx context.Context, input *models.SubmissionPayload) (*models.Ack, error) {
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	start := time.Now()
	ack, err := h.execute(ctx, input)

	status := "completed"
	if err != nil {
		status = "failed"
	}
	h.obs.RecordJobProcessed(ctx, TaskType, status)
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), status)
	return ack, err
}

func (h *Handler) execute(ctx context.Context, input *models.SubmissionPayload) (*models.Ack, error) {
	target := h.target.Load()
	if target == nil {
		return nil, apperrors.NewSessionNotReadyError()
	}

	name := input.ChannelName()
	if name == "" {
		return nil, apperrors.NewMalformedInputError("name", "applicant name is empty")
	}

	log := h.logger.WithFields(map[string]interface{}{
		"requestId": relay.RequestID(ctx),
		"channel":   name,
	})

	// A bad profile URL is caught before anything is created.
	ref, err := armory.ParseProfileURL(input.ProfileURL)
	if err != nil {
		return nil, err
	}

	channel, err := h.provision(ctx, *target, name)
	if err != nil {
		return nil, err
	}

	imageURL := h.resolveImage(ctx, ref, input.ProfileURL, log)

	msgs := BuildMessages(*input, imageURL, h.config.MaxMessageRunes)
	posted, err := h.post(ctx, channel.ID, msgs)
	if err != nil {
		log.Error("Posting stopped", map[string]interface{}{
			"posted": posted,
			"total":  len(msgs),
			"error":  err,
		})
		return nil, &PostError{Posted: posted, Total: len(msgs), Err: err}
	}

	log.Info("Application posted", map[string]interface{}{
		"channelId": channel.ID,
		"messages":  posted,
		"questions": len(input.Questions),
		"thumbnail": imageURL != "",
	})

	return &models.Ack{
		Acknowledgement: models.AcknowledgementOK,
		Channel:         channel.Name,
		ChannelCreated:  channel.created,
		Posted:          posted,
		Total:           len(msgs),
	}, nil
}

type provisioned struct {
	*discord.Channel
	created bool
}

func (h *Handler) provision(ctx context.Context, target discord.Target, name string) (provisioned, error) {
	ctx, span := h.obs.StartSpan(ctx, "provision", attribute.String("channel", name))
	defer span.End()

	ch, created, err := h.provisioner.EnsureChannel(ctx, target, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provisioning failed")
		return provisioned{}, err
	}
	if created {
		metrics.WorkerChannelsCreated.Inc()
	}
	span.SetAttributes(attribute.Bool("created", created))
	return provisioned{Channel: ch, created: created}, nil
}

// resolveImage never fails the submission; the summary is posted without
// a thumbnail instead.
func (h *Handler) resolveImage(ctx context.Context, ref armory.ProfileRef, profileURL string, log logger.Logger) string {
	ctx, span := h.obs.StartSpan(ctx, "resolve_image", attribute.String("region", ref.Region))
	defer span.End()

	imageURL, err := h.resolver.ResolveRef(ctx, ref, profileURL)
	if err != nil {
		metrics.WorkerImageResolutionFailures.Inc()
		span.RecordError(err)
		log.Warn("Character image unavailable, posting without thumbnail", map[string]interface{}{
			"realm":     ref.RealmSlug,
			"character": ref.Character,
			"error":     err,
		})
		return ""
	}
	return imageURL
}

// post sends msgs one at a time, in order, and stops at the first refusal.
func (h *Handler) post(ctx context.Context, channelID string, msgs []discord.Message) (int, error) {
	ctx, span := h.obs.StartSpan(ctx, "post", attribute.Int("messages", len(msgs)))
	defer span.End()

	for i, msg := range msgs {
		if err := h.poster.SendMessage(ctx, channelID, msg); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "post failed")
			return i, err
		}
		metrics.WorkerMessagesPosted.Inc()
	}
	return len(msgs), nil
}
