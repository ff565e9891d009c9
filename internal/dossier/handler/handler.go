package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/service"
	"formalitys/internal/ledger"
	"formalitys/internal/transport/http/shared"
	dErrors "formalitys/pkg/domain-errors"
)

// Handler exposes the dossier lifecycle and its document ledger.
type Handler struct {
	dossiers *service.Service
	ledger   *ledger.Service
	logger   *slog.Logger
}

func New(dossiers *service.Service, ledgerSvc *ledger.Service, logger *slog.Logger) *Handler {
	return &Handler{dossiers: dossiers, ledger: ledgerSvc, logger: logger}
}

// Register mounts the owner-facing routes. RequireAuth must wrap the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/dossiers", h.create)
	r.Get("/dossiers", h.list)
	r.Get("/dossiers/{dossierID}", h.get)
	r.Put("/dossiers/{dossierID}/steps/{step}", h.saveStep)
	r.Post("/dossiers/{dossierID}/documents", h.uploadDocuments)
	r.Get("/dossiers/{dossierID}/documents", h.listDocuments)
	r.Get("/dossiers/{dossierID}/documents/blob", h.downloadDocument)
	r.Get("/dossiers/{dossierID}/documents/url", h.signDocumentURL)
}

// RegisterAdmin mounts the override route. RequireAdmin must wrap the router.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/dossiers/{dossierID}/override", h.override)
}

type createRequest struct {
	ProcedureType models.ProcedureType `json:"procedure_type"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.AuthenticatedUserID(r.Context())
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	var req createRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	d, err := h.dossiers.Create(r.Context(), ownerID, req.ProcedureType)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, err := shared.AuthenticatedUserID(r.Context())
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	dossiers, err := h.dossiers.List(r.Context(), ownerID)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	if dossiers == nil {
		dossiers = []*models.Dossier{}
	}
	shared.WriteJSON(w, http.StatusOK, dossiers)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
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
	d, err := h.dossiers.Get(r.Context(), ownerID, dossierID)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, d)
}

type saveStepRequest struct {
	Data  map[string]any `json:"data"`
	Clear []string       `json:"clear,omitempty"`
	Draft bool           `json:"draft,omitempty"`
}

func (h *Handler) saveStep(w http.ResponseWriter, r *http.Request) {
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
	step, err := pathStep(r)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	var req saveStepRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	d, err := h.dossiers.SaveStep(r.Context(), ownerID, dossierID, service.SaveStepInput{
		Step:  step,
		Data:  req.Data,
		Clear: req.Clear,
		Draft: req.Draft,
	})
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, d)
}

// uploadDocuments accepts a multipart batch. Each part's form field name is
// the document type; parts are read in wire order so the ledger preserves
// submission order.
func (h *Handler) uploadDocuments(w http.ResponseWriter, r *http.Request) {
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
	reader, err := r.MultipartReader()
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeBadRequest, "expected a multipart/form-data body"))
		return
	}

	var uploads []ledger.Upload
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			shared.WriteError(r.Context(), w, h.logger,
				dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed multipart body"))
			return
		}
		if part.FileName() == "" {
			continue
		}
		uploads = append(uploads, ledger.Upload{
			DocumentType: part.FormName(),
			OriginalName: part.FileName(),
			Mimetype:     part.Header.Get("Content-Type"),
			Body:         part,
		})
	}

	d, err := h.ledger.Append(r.Context(), ownerID, dossierID, uploads)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
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
	documentType := r.URL.Query().Get("type")
	if documentType == "" {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeBadRequest, "query parameter type is required"))
		return
	}
	docs, err := h.ledger.ListByType(r.Context(), ownerID, dossierID, documentType)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	shared.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
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
	storageKey := r.URL.Query().Get("key")
	if storageKey == "" {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeBadRequest, "query parameter key is required"))
		return
	}
	body, meta, err := h.ledger.Open(r.Context(), ownerID, dossierID, storageKey)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", meta.Mimetype)
	w.Header().Set("Content-Disposition", `attachment; filename="`+meta.OriginalName+`"`)
	_, _ = io.Copy(w, body)
}

func (h *Handler) signDocumentURL(w http.ResponseWriter, r *http.Request) {
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
	storageKey := r.URL.Query().Get("key")
	if storageKey == "" {
		shared.WriteError(r.Context(), w, h.logger,
			dErrors.New(dErrors.CodeBadRequest, "query parameter key is required"))
		return
	}
	url, err := h.ledger.SignedURL(r.Context(), ownerID, dossierID, storageKey, 15*time.Minute)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"url": url})
}

func pathStep(r *http.Request) (int, error) {
	step, err := strconv.Atoi(chi.URLParam(r, "step"))
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid step in path")
	}
	return step, nil
}

type overrideRequest struct {
	Status      *models.Status `json:"status,omitempty"`
	CurrentStep *int           `json:"current_step,omitempty"`
}

func (h *Handler) override(w http.ResponseWriter, r *http.Request) {
	dossierID, err := shared.PathUUID(chi.URLParam(r, "dossierID"))
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	var req overrideRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	d, err := h.dossiers.AdminOverride(r.Context(), dossierID, req.Status, req.CurrentStep)
	if err != nil {
		shared.WriteError(r.Context(), w, h.logger, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, d)
}
