package testutil

import (
	"net/http"
	"time"

	"enlist/pkg/domain"
	"enlist/pkg/requestcontext"
)

// WithIdentity marks the request as authenticated, as the session middleware would.
func WithIdentity(req *http.Request, ident *domain.Identity) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), ident))
}

// AtTime pins the request time seen by services.
func AtTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// Applicant returns a complete identity for tests.
func Applicant(id string) *domain.Identity {
	return &domain.Identity{
		ID:            domain.IdentityID(id),
		Username:      "recruit-" + id,
		Discriminator: "0",
	}
}
