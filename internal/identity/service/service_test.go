package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"enlist/internal/identity/models"
	"enlist/internal/identity/service/mocks"
	"enlist/internal/identity/session"
	"enlist/internal/platform/metrics"
	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/requestcontext"
)

// ServiceSuite drives the login state machine with a mocked provider.
// Transitions are checked through the cookies the service issues, which is
// the only place the state lives.
type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	codec    *session.Codec
	metrics  *metrics.Metrics
	service  *Service
	now      time.Time
	ctx      context.Context
	ident    *domain.Identity
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.provider = mocks.NewMockProvider(s.ctrl)
	codec, err := session.NewCodec("0123456789abcdef0123456789abcdef", "enlist", 7*24*time.Hour, 10*time.Minute)
	s.Require().NoError(err)
	s.codec = codec
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service, err = New(s.provider, s.codec,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithHandshakeTimeout(50*time.Millisecond),
	)
	s.Require().NoError(err)
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.ident = &domain.Identity{ID: "4242", Username: "recruit", Discriminator: "0007"}
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

// beginLogin returns the login-state token and the nonce sent as OAuth state.
func (s *ServiceSuite) beginLogin() (string, string) {
	var state string
	s.provider.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(st string) string {
		state = st
		return "https://discord.test/authorize?state=" + url.QueryEscape(st)
	})
	redirect, err := s.service.BeginLogin(s.ctx)
	s.Require().NoError(err)
	s.Require().NotEmpty(redirect.LoginToken)
	s.Equal(s.now.Add(10*time.Minute), redirect.ExpiresAt)
	return redirect.LoginToken, state
}

func (s *ServiceSuite) TestNew() {
	_, err := New(nil, s.codec)
	s.Error(err)
	_, err = New(s.provider, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestLoginHappyPath() {
	loginToken, state := s.beginLogin()
	s.Equal(models.StateAuthenticating, s.service.State(s.ctx, "", loginToken))

	s.provider.EXPECT().Exchange(gomock.Any(), "code-1").Return(s.ident, nil)
	grant, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{
		State:      state,
		Code:       "code-1",
		LoginToken: loginToken,
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	})
	s.Require().NoError(err)
	s.Equal(s.ident, grant.Identity)
	s.Equal(s.now.Add(7*24*time.Hour), grant.ExpiresAt)

	s.Equal(models.StateAuthenticated, s.service.State(s.ctx, grant.SessionToken, ""))
	current, err := s.service.CurrentIdentity(s.ctx, grant.SessionToken)
	s.Require().NoError(err)
	s.True(current.Equal(s.ident))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Logins.WithLabelValues("succeeded")))
}

func (s *ServiceSuite) TestLoginFailures() {
	s.Run("provider error parameter", func() {
		loginToken, state := s.beginLogin()
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: state, ProviderError: "access_denied", LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	})

	s.Run("state does not match the stored nonce", func() {
		loginToken, _ := s.beginLogin()
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: "forged", Code: "c", LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	})

	s.Run("no login in progress", func() {
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: "x", Code: "c"})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
		s.Equal("no login in progress", dErrors.MessageOf(err))
	})

	s.Run("login state expired", func() {
		loginToken, state := s.beginLogin()
		late := requestcontext.WithTime(context.Background(), s.now.Add(11*time.Minute))
		_, err := s.service.CompleteLogin(late, models.CallbackRequest{State: state, Code: "c", LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
		s.Equal("login state expired", dErrors.MessageOf(err))
		s.Equal(models.StateAnonymous, s.service.State(late, "", loginToken))
	})

	s.Run("missing code", func() {
		loginToken, state := s.beginLogin()
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: state, LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	})

	s.Run("exchange fails", func() {
		loginToken, state := s.beginLogin()
		s.provider.EXPECT().Exchange(gomock.Any(), "c").Return(nil, errors.New("invalid_grant"))
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: state, Code: "c", LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	})

	s.Run("incomplete identity", func() {
		loginToken, state := s.beginLogin()
		s.provider.EXPECT().Exchange(gomock.Any(), "c").Return(&domain.Identity{ID: "1"}, nil)
		_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: state, Code: "c", LoginToken: loginToken})
		s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	})

	s.Equal(7.0, promtest.ToFloat64(s.metrics.Logins.WithLabelValues("failed")))
}

func (s *ServiceSuite) TestHandshakeIsBounded() {
	loginToken, state := s.beginLogin()
	s.provider.EXPECT().Exchange(gomock.Any(), "slow").DoAndReturn(func(ctx context.Context, _ string) (*domain.Identity, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := s.service.CompleteLogin(s.ctx, models.CallbackRequest{State: state, Code: "slow", LoginToken: loginToken})
	s.True(dErrors.HasCode(err, dErrors.CodeAuthHandshakeFailed))
	s.Equal("identity provider timed out", dErrors.MessageOf(err))
	s.Less(time.Since(start), 5*time.Second)
}

func (s *ServiceSuite) TestCurrentIdentity() {
	s.Run("no session is unauthorized", func() {
		_, err := s.service.CurrentIdentity(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(models.StateAnonymous, s.service.State(s.ctx, "", ""))
	})

	s.Run("garbage session is unauthorized", func() {
		_, err := s.service.CurrentIdentity(s.ctx, "not-a-token")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(models.StateAnonymous, s.service.State(s.ctx, "not-a-token", ""))
	})

	s.Run("expired session is unauthorized", func() {
		token, _, err := s.codec.IssueSession(s.ident, s.now.Add(-8*24*time.Hour))
		s.Require().NoError(err)
		_, err = s.service.CurrentIdentity(s.ctx, token)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal("session expired", dErrors.MessageOf(err))
	})

	s.Run("login state alone does not authenticate", func() {
		loginToken, _ := s.beginLogin()
		_, err := s.service.CurrentIdentity(s.ctx, loginToken)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
