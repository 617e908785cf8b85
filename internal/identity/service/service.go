package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"enlist/internal/identity/device"
	"enlist/internal/identity/models"
	"enlist/internal/identity/session"
	"enlist/internal/platform/metrics"
	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/platform/sentinel"
	"enlist/pkg/requestcontext"
)

const defaultHandshakeTimeout = 10 * time.Second

// Provider is the external identity provider's authorization-code flow.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.Identity, error)
}

// Service runs the login state machine. It holds no per-browser state: the
// Authenticating and Authenticated states live in signed cookies issued by
// the codec.
type Service struct {
	provider         Provider
	codec            *session.Codec
	logger           *slog.Logger
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	handshakeTimeout time.Duration
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

// WithHandshakeTimeout bounds the code exchange and profile fetch.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

func New(provider Provider, codec *session.Codec, opts ...Option) (*Service, error) {
	if provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if codec == nil {
		return nil, errors.New("session codec is required")
	}
	svc := &Service{
		provider:         provider,
		codec:            codec,
		logger:           slog.Default(),
		tracer:           otel.Tracer("enlist/identity"),
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// BeginLogin moves the browser to Authenticating: it mints a nonce, signs it
// into a login-state token and returns the provider URL carrying it as state.
func (s *Service) BeginLogin(ctx context.Context) (*models.LoginRedirect, error) {
	nonce, err := session.NewNonce()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start login")
	}
	token, expires, err := s.codec.IssueLoginState(nonce, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start login")
	}
	return &models.LoginRedirect{
		URL:        s.provider.AuthCodeURL(nonce),
		LoginToken: token,
		ExpiresAt:  expires,
	}, nil
}

// CompleteLogin validates the provider's response against the stored login
// state and, on success, issues a session for the returned identity. Every
// failure is auth_handshake_failed; the caller returns to Anonymous and must
// start over.
func (s *Service) CompleteLogin(ctx context.Context, req models.CallbackRequest) (grant *models.SessionGrant, err error) {
	ctx, span := s.tracer.Start(ctx, "identity.CompleteLogin")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
			s.metrics.IncrementLogin("failed")
			s.logger.WarnContext(ctx, "login_failed",
				"log_type", "audit",
				"reason", dErrors.MessageOf(err),
				"error", err,
				"device", device.ParseUserAgent(req.UserAgent),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		span.End()
	}()

	now := requestcontext.Now(ctx)

	if req.ProviderError != "" {
		return nil, dErrors.New(dErrors.CodeAuthHandshakeFailed, "provider rejected the login: "+req.ProviderError)
	}
	nonce, err := s.codec.ParseLoginState(req.LoginToken, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthHandshakeFailed, loginStateMessage(err))
	}
	if req.State == "" || subtle.ConstantTimeCompare([]byte(req.State), []byte(nonce)) != 1 {
		return nil, dErrors.New(dErrors.CodeAuthHandshakeFailed, "login state mismatch")
	}
	if req.Code == "" {
		return nil, dErrors.New(dErrors.CodeAuthHandshakeFailed, "missing authorization code")
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()
	ident, err := s.provider.Exchange(exchangeCtx, req.Code)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeAuthHandshakeFailed, "identity provider timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeAuthHandshakeFailed, "identity provider exchange failed")
	}
	if !ident.Complete() {
		return nil, dErrors.New(dErrors.CodeAuthHandshakeFailed, "identity provider returned an incomplete identity")
	}

	token, expires, err := s.codec.IssueSession(ident, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthHandshakeFailed, "failed to issue session")
	}

	span.SetAttributes(attribute.String("identity.id", ident.ID.String()))
	s.metrics.IncrementLogin("succeeded")
	s.logger.InfoContext(ctx, "login_completed",
		"log_type", "audit",
		"identity_id", ident.ID,
		"display_name", ident.DisplayName(),
		"device", device.ParseUserAgent(req.UserAgent),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.SessionGrant{Identity: ident, SessionToken: token, ExpiresAt: expires}, nil
}

func loginStateMessage(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return "no login in progress"
	case errors.Is(err, sentinel.ErrExpired):
		return "login state expired"
	default:
		return "invalid login state"
	}
}

// CurrentIdentity returns the identity bound to a session token, or an
// unauthorized error when there is none.
func (s *Service) CurrentIdentity(ctx context.Context, sessionToken string) (*domain.Identity, error) {
	if sessionToken == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "not logged in")
	}
	ident, err := s.codec.ParseSession(sessionToken, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "session expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session")
	}
	return ident, nil
}

// State classifies a browser from its two cookies. A valid session wins; an
// unexpired login-state token alone is Authenticating; anything else is
// Anonymous, so an abandoned handshake falls back once its token expires.
func (s *Service) State(ctx context.Context, sessionToken, loginToken string) models.SessionState {
	now := requestcontext.Now(ctx)
	if sessionToken != "" {
		if _, err := s.codec.ParseSession(sessionToken, now); err == nil {
			return models.StateAuthenticated
		}
	}
	if loginToken != "" {
		if _, err := s.codec.ParseLoginState(loginToken, now); err == nil {
			return models.StateAuthenticating
		}
	}
	return models.StateAnonymous
}
