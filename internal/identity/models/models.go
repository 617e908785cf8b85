package models

import (
	"time"

	"enlist/pkg/domain"
)

// SessionState is where a browser sits in the login state machine.
//
//	Anonymous -> Authenticating   (BeginLogin)
//	Authenticating -> Authenticated (CompleteLogin succeeds)
//	Authenticating -> Anonymous   (CompleteLogin fails or the login state expires)
//	Authenticated -> Anonymous    (Logout or session expiry)
type SessionState string

const (
	StateAnonymous      SessionState = "anonymous"
	StateAuthenticating SessionState = "authenticating"
	StateAuthenticated  SessionState = "authenticated"
)

func (s SessionState) String() string { return string(s) }

// LoginRedirect is the result of BeginLogin: where to send the browser and
// the signed login-state token to hold on to until the callback.
type LoginRedirect struct {
	URL        string
	LoginToken string
	ExpiresAt  time.Time
}

// CallbackRequest carries what the provider sent back plus the login-state
// token stored at BeginLogin.
type CallbackRequest struct {
	State         string
	Code          string
	ProviderError string
	LoginToken    string
	UserAgent     string
}

// SessionGrant is a freshly issued session for an identity.
type SessionGrant struct {
	Identity     *domain.Identity
	SessionToken string
	ExpiresAt    time.Time
}

// Me is the JSON shape of GET /me for an authenticated caller.
type Me struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
}

// MeFromIdentity projects an identity onto the /me response.
func MeFromIdentity(ident *domain.Identity) Me {
	return Me{
		ID:            ident.ID.String(),
		Username:      ident.Username,
		Discriminator: ident.Discriminator,
		Avatar:        ident.Avatar,
	}
}
