package handler

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"enlist/internal/submission/models"
	"enlist/pkg/domain"
	dErrors "enlist/pkg/domain-errors"
	"enlist/pkg/platform/httputil"
	"enlist/pkg/requestcontext"
)

const maxBodyBytes = 64 << 10

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Service defines the submission operations the handler needs.
type Service interface {
	Submit(ctx context.Context, ident *domain.Identity, payload models.Payload) (*models.Receipt, error)
	Eligibility(ctx context.Context, ident *domain.Identity) (*models.Eligibility, error)
}

// Handler serves the entry page and the submission endpoint.
type Handler struct {
	service      Service
	logger       *slog.Logger
	cooldownDays int
}

func New(service Service, logger *slog.Logger, cooldown time.Duration) *Handler {
	days := int((cooldown + 24*time.Hour - 1) / (24 * time.Hour))
	return &Handler{service: service, logger: logger, cooldownDays: days}
}

// Register registers the submission routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleEntry)
	r.Post("/submit", h.HandleSubmit)
}

type pageData struct {
	Title          string
	DisplayName    string
	RemainingDays  int
	CooldownDays   int
	AvailableAt    time.Time
	MaxDescription int
}

// HandleEntry renders the login prompt, the cooldown notice or the form.
func (h *Handler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := requestcontext.Identity(ctx)
	if !ident.Complete() {
		h.render(w, r, http.StatusOK, "login", pageData{Title: "Army Corps Application"})
		return
	}

	eligibility, err := h.service.Eligibility(ctx, ident)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to evaluate eligibility", "identity_id", ident.ID, "error", err)
		h.render(w, r, http.StatusInternalServerError, "error", pageData{Title: "Error"})
		return
	}
	if !eligibility.Eligible {
		h.render(w, r, http.StatusOK, "cooldown", pageData{
			Title:         "Cooldown",
			DisplayName:   ident.DisplayName(),
			RemainingDays: eligibility.RemainingDays,
			CooldownDays:  h.cooldownDays,
			AvailableAt:   eligibility.AvailableAt,
		})
		return
	}
	h.render(w, r, http.StatusOK, "form", pageData{
		Title:          "Army Corps Application",
		DisplayName:    ident.DisplayName(),
		MaxDescription: models.MaxDescriptionLength,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, page, data); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render page", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type submitResponse struct {
	Success bool `json:"success"`
}

type cooldownResponse struct {
	Error            string    `json:"error"`
	ErrorDescription string    `json:"error_description"`
	RemainingDays    int       `json:"remaining_days"`
	AvailableAt      time.Time `json:"available_at"`
}

// HandleSubmit accepts a JSON object, or a urlencoded form, carrying at least
// a description field.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident := requestcontext.Identity(ctx)
	if !ident.Complete() {
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: string(dErrors.CodeUnauthorized)})
		return
	}

	fields, err := decodeFields(w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	_, err = h.service.Submit(ctx, ident, models.NewPayload(fields))
	if err != nil {
		h.writeSubmitError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, submitResponse{Success: true})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var cooldown *models.CooldownActiveError
	switch {
	case errors.As(err, &cooldown):
		httputil.WriteJSON(w, http.StatusTooManyRequests, cooldownResponse{
			Error:            string(dErrors.CodeCooldownActive),
			ErrorDescription: cooldown.Error(),
			RemainingDays:    cooldown.RemainingDays,
			AvailableAt:      cooldown.AvailableAt,
		})
	case dErrors.HasCode(err, dErrors.CodeUnauthorized):
		httputil.WriteJSON(w, http.StatusForbidden, httputil.ErrorResponse{Error: string(dErrors.CodeUnauthorized)})
	default:
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "submission failed", "error", err, "request_id", requestcontext.RequestID(r.Context()))
		}
		httputil.WriteError(w, err)
	}
}

// decodeFields reads the top-level string fields of the body. Non-string
// JSON values are ignored.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid form body")
		}
		fields := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		return fields, nil
	default:
		var raw map[string]any
		// An empty body is an application with no fields.
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "request body must be a JSON object")
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		return fields, nil
	}
}
