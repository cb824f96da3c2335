package subscriptions

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/brykin/letterdrop/internal/domain"
	"github.com/brykin/letterdrop/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: domain.ErrInvalidEmail, Status: http.StatusBadRequest, Message: "invalid email address"},
	{Error: domain.ErrInvalidName, Status: http.StatusBadRequest, Message: "invalid name"},
	{Error: ErrUnknownToken, Status: http.StatusUnauthorized, Message: "unknown confirmation token"},
	{Error: ErrTokenExpired, Status: http.StatusUnauthorized, Message: "confirmation token expired, please subscribe again"},
	{Error: ErrSubscriberNotFound, Status: http.StatusUnauthorized, Message: "unknown confirmation token"},
}

// Handler handles HTTP requests for the subscriptions module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new subscriptions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers the public subscription routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/subscriptions", h.Subscribe)
	r.Get("/subscriptions/confirm", h.Confirm)
}

// SubscribeRequest represents the signup request body.
type SubscribeRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
}

// SubscribeResponse is returned once the confirmation email is accepted
// for sending.
type SubscribeResponse struct {
	Status string `json:"status"`
}

// ConfirmResponse is returned after a successful confirmation.
type ConfirmResponse struct {
	Status string `json:"status"`
}

// Subscribe handles POST /subscriptions. Both JSON and HTML-form bodies
// are accepted: subscribe forms post urlencoded data directly.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSubscribeRequest(w, r)
	if !ok {
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	_, err := h.service.Subscribe(r.Context(), SubscribeInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, SubscribeResponse{Status: "pending_confirmation"})
}

// Confirm handles GET /subscriptions/confirm?token=...
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	_, err := h.service.Confirm(r.Context(), token)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, ConfirmResponse{Status: "confirmed"})
}

func (h *Handler) decodeSubscribeRequest(w http.ResponseWriter, r *http.Request) (SubscribeRequest, bool) {
	var req SubscribeRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid form data")
			return req, false
		}
		req.Name = r.PostFormValue("name")
		req.Email = r.PostFormValue("email")
		return req, true
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	return req, true
}
