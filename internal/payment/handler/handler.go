package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formalitys/internal/payment"
	"formalitys/internal/transport/http/shared"
	dErrors "formalitys/pkg/domain-errors"
)

// Handler exposes payment quotes, intents, and the gateway webhook.
type Handler struct {
	payments      *payment.Service
	webhookSecret string
	logger        *slog.Logger
}

func New(payments *payment.Service, webhookSecret string, logger *slog.Logger) *Handler {
	return &Handler{payments: payments, webhookSecret: webhookSecret, logger: logger}
}

// Register mounts owner-facing routes. RequireAuth must wrap the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/dossiers/{dossierID}/payment/quote", h.quote)
	r.Post("/dossiers/{dossierID}/payment/intent", h.createIntent)
}

// RegisterWebhook mounts the gateway callback on the unauthenticated router;
// the shared secret header stands in for user auth.
func (h *Handler) RegisterWebhook(r chi.Router) {
	r.Post("/payments/webhook", h.webhook)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.AuthenticatedUserID(r.Context())
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	dossierID, err := shared.PathUUID(chi.URLParam(r, "dossierID"))
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	quote, err := h.payments.Quote(r.Context(), ownerID, dossierID)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, quote)
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.AuthenticatedUserID(r.Context())
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	dossierID, err := shared.PathUUID(chi.URLParam(r, "dossierID"))
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	result, err := h.payments.CreateIntent(r.Context(), ownerID, dossierID)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, result)
}

type webhookRequest struct {
	Reference string `json:"reference"`
	Succeeded bool   `json:"succeeded"`
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.webhookSecret)) != 1 {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeUnauthorized, "invalid webhook secret"))
		return
	}
	var req webhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	if req.Reference == "" {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeBadRequest, "reference is required"))
		return
	}
	d, err := h.payments.Confirm(r.Context(), req.Reference, req.Succeeded)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"dossier_id": d.ID,
		"status":     d.Status,
	})
}
