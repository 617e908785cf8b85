package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"enlist/internal/identity/models"
	"enlist/internal/identity/session"
	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/platform/httputil"
	"enlist/pkg/requestcontext"
)

// Service defines the login operations the handler needs.
type Service interface {
	BeginLogin(ctx context.Context) (*models.LoginRedirect, error)
	CompleteLogin(ctx context.Context, req models.CallbackRequest) (*models.SessionGrant, error)
	CurrentIdentity(ctx context.Context, sessionToken string) (*domain.Identity, error)
}

// Handler serves the login, callback, logout and identity query endpoints.
type Handler struct {
	service      Service
	logger       *slog.Logger
	cookieSecure bool
}

func New(service Service, logger *slog.Logger, cookieSecure bool) *Handler {
	return &Handler{service: service, logger: logger, cookieSecure: cookieSecure}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/login", h.HandleLogin)
	r.Get("/callback", h.HandleCallback)
	r.Get("/logout", h.HandleLogout)
	r.Get("/me", h.HandleMe)
}

// LoadIdentity attaches the session's identity to the request context when
// the session cookie is valid. Invalid or expired cookies are cleared.
func (h *Handler) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := session.TokenFromRequest(r, session.SessionCookieName)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ident, err := h.service.CurrentIdentity(r.Context(), token)
		if err != nil {
			h.logger.DebugContext(r.Context(), "ignoring session cookie", "reason", dErrors.MessageOf(err))
			http.SetCookie(w, session.ClearCookie(session.SessionCookieName, h.cookieSecure))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithIdentity(r.Context(), ident)))
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	redirect, err := h.service.BeginLogin(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to begin login", "error", err)
		httputil.WriteError(w, err)
		return
	}
	http.SetCookie(w, session.NewCookie(session.LoginCookieName, redirect.LoginToken, redirect.ExpiresAt, h.cookieSecure))
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// HandleCallback completes the handshake and always lands on the entry page.
// On failure no session is created and any existing one is left as it was.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.CallbackRequest{
		State:         q.Get("state"),
		Code:          q.Get("code"),
		ProviderError: q.Get("error"),
		LoginToken:    session.TokenFromRequest(r, session.LoginCookieName),
		UserAgent:     r.UserAgent(),
	}

	http.SetCookie(w, session.ClearCookie(session.LoginCookieName, h.cookieSecure))
	grant, err := h.service.CompleteLogin(r.Context(), req)
	if err == nil {
		http.SetCookie(w, session.NewCookie(session.SessionCookieName, grant.SessionToken, grant.ExpiresAt, h.cookieSecure))
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if ident := requestcontext.Identity(r.Context()); ident != nil {
		h.logger.InfoContext(r.Context(), "logout", "log_type", "audit", "identity_id", ident.ID)
	}
	http.SetCookie(w, session.ClearCookie(session.SessionCookieName, h.cookieSecure))
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleMe returns {} for anonymous callers and the identity fields otherwise.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	ident := requestcontext.Identity(r.Context())
	if !ident.Complete() {
		httputil.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.MeFromIdentity(ident))
}
