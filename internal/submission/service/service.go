package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"enlist/internal/cooldown/gate"
	cooldownModels "enlist/internal/cooldown/models"
	"enlist/internal/platform/metrics"
	"enlist/internal/submission/models"
	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/requestcontext"
)

// CooldownStore is the subset of the cooldown store the submission flow uses.
type CooldownStore interface {
	Get(ctx context.Context, id domain.IdentityID) (*cooldownModels.CooldownRecord, error)
	Execute(ctx context.Context, id domain.IdentityID, validate func(*cooldownModels.CooldownRecord) error, at time.Time) (*cooldownModels.CooldownRecord, error)
}

// Notifier hands an accepted application to the notification relay. It must
// not block on delivery.
type Notifier interface {
	Dispatch(ctx context.Context, record *models.ActionRecord)
}

type Service struct {
	store    CooldownStore
	notifier Notifier
	gate     *gate.Evaluator
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCooldown overrides the default seven-day window.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		s.gate = gate.New(d)
	}
}

func New(store CooldownStore, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("cooldown store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	svc := &Service{
		store:    store,
		notifier: notifier,
		gate:     gate.New(gate.DefaultCooldown),
		logger:   slog.Default(),
		tracer:   otel.Tracer("enlist/submission"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit accepts an application for ident if its cooldown has elapsed.
//
// The gate check and the cooldown write run inside one store Execute, so two
// concurrent submissions for the same identity cannot both pass. Once the
// write commits the application counts: the notification is dispatched
// asynchronously and its outcome never changes the result.
func (s *Service) Submit(ctx context.Context, ident *domain.Identity, payload models.Payload) (receipt *models.Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "submission.Submit")
	defer func() {
		if err != nil && !dErrors.HasCode(err, dErrors.CodeCooldownActive) {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	if !ident.Complete() {
		s.metrics.IncrementSubmission("unauthorized")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login required")
	}
	span.SetAttributes(attribute.String("identity.id", ident.ID.String()))

	if err := payload.Validate(); err != nil {
		s.metrics.IncrementSubmission("rejected")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	committed, err := s.store.Execute(ctx, ident.ID, func(current *cooldownModels.CooldownRecord) error {
		decision := s.gate.Evaluate(now, current.LastAction())
		s.metrics.IncrementGateDecision(decision.Eligible)
		if !decision.Eligible {
			return &models.CooldownActiveError{RemainingDays: decision.RemainingDays, AvailableAt: decision.AvailableAt}
		}
		return nil
	}, now)
	if err != nil {
		var cooldown *models.CooldownActiveError
		if errors.As(err, &cooldown) {
			s.metrics.IncrementSubmission("cooldown")
			return nil, err
		}
		s.metrics.IncrementSubmission("error")
		s.logger.ErrorContext(ctx, "failed to record application",
			"identity_id", ident.ID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record application")
	}

	record := models.NewActionRecord(ident, payload, committed.LastActionAt)
	s.logger.InfoContext(ctx, "application_submitted",
		"log_type", "audit",
		"identity_id", ident.ID,
		"record_id", record.ID,
		"answers", len(record.Answers),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncrementSubmission("accepted")
	s.notifier.Dispatch(ctx, record)

	return &models.Receipt{
		RecordID:     record.ID,
		SubmittedAt:  committed.LastActionAt,
		NextEligible: committed.LastActionAt.Add(s.gate.Cooldown()),
	}, nil
}

// Eligibility is the non-authoritative check the entry page uses to decide
// between the form and the cooldown notice. Submit re-checks.
func (s *Service) Eligibility(ctx context.Context, ident *domain.Identity) (*models.Eligibility, error) {
	if !ident.Complete() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "login required")
	}
	record, err := s.store.Get(ctx, ident.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cooldown")
	}
	decision := s.gate.Evaluate(requestcontext.Now(ctx), record.LastAction())
	return &models.Eligibility{
		Eligible:      decision.Eligible,
		RemainingDays: decision.RemainingDays,
		AvailableAt:   decision.AvailableAt,
	}, nil
}
