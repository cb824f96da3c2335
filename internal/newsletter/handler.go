package newsletter

import (
	"encoding/json"
	"net/http"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the newsletter module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new newsletter handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the publisher routes. The caller is expected
// to mount these behind publisher authentication.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/newsletters", h.Publish)
}

// PublishRequest represents a newsletter issue submission.
type PublishRequest struct {
	Title   string         `json:"title" validate:"required"`
	Content PublishContent `json:"content"`
}

// PublishContent carries both renderings of the issue body.
type PublishContent struct {
	Text string `json:"text" validate:"required"`
	HTML string `json:"html" validate:"required"`
}

// Publish handles POST /newsletters. It blocks until the dispatch run
// completes and returns the full per-recipient report.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	report, err := h.service.Publish(r.Context(), domain.NewsletterIssue{
		Title:    req.Title,
		TextBody: req.Content.Text,
		HTMLBody: req.Content.HTML,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}

	httputil.Success(w, http.StatusOK, report)
}
