// Package provider talks to the external identity provider. Only the parts
// the login flow needs are exposed: an authorize URL and a code exchange that
// yields a complete identity.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"enlist/pkg/domain"
	"enlist/pkg/platform/sentinel"
)

const (
	scopeIdentify   = "identify"
	maxProfileBytes = 64 << 10
)

// Config describes the OAuth2 application registered with the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

// Discord implements the authorization-code flow with the "identify" scope.
type Discord struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

type Option func(*Discord)

// WithHTTPClient sets the client used for token exchange and profile fetch.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Discord) { d.httpClient = c }
}

func NewDiscord(cfg Config, opts ...Option) *Discord {
	d := &Discord{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{scopeIdentify},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: cfg.APIBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AuthCodeURL is where the browser is sent to start the handshake.
func (d *Discord) AuthCodeURL(state string) string {
	return d.oauth.AuthCodeURL(state)
}

type profile struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
}

// Exchange trades code for a token and reads the caller's profile.
func (d *Discord) Exchange(ctx context.Context, code string) (*domain.Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)

	token, err := d.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiBaseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	resp, err := d.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxProfileBytes))
		return nil, fmt.Errorf("fetch profile: status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var p profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	id, err := domain.ParseIdentityID(p.ID)
	if err != nil {
		return nil, fmt.Errorf("profile id: %w", err)
	}
	ident := &domain.Identity{ID: id, Username: p.Username, Discriminator: p.Discriminator}
	if p.Avatar != nil {
		ident.Avatar = *p.Avatar
	}
	if !ident.Complete() {
		return nil, fmt.Errorf("profile incomplete: %w", sentinel.ErrInvalidState)
	}
	return ident, nil
}
