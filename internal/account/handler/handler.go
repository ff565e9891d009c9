package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formalitys/internal/account/service"
	"formalitys/internal/transport/http/shared"
)

// Handler exposes registration and login.
type Handler struct {
	accounts *service.Service
	logger   *slog.Logger
}

func New(accounts *service.Service, logger *slog.Logger) *Handler {
	return &Handler{accounts: accounts, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	result, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
