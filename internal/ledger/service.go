package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"formalitys/internal/audit"
	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/store"
	"formalitys/internal/procedure"
	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/platform/sentinel"
	"formalitys/pkg/requestcontext"
)

// MaxDocumentSize caps one uploaded file at 10 MiB.
const MaxDocumentSize = 10 << 20

// allowedMimetypes maps each document type to the content types accepted for
// it. Identity documents arrive both as scans and photos; legal papers must be
// PDFs; establishment photos must be images.
var allowedMimetypes = map[string][]string{
	procedure.DocIdentity:             {"application/pdf", "image/jpeg", "image/png", "image/webp"},
	procedure.DocLeaseContract:        {"application/pdf"},
	procedure.DocPropertyDeed:         {"application/pdf"},
	procedure.DocHabitationPermit:     {"application/pdf"},
	procedure.DocInsuranceCertificate: {"application/pdf"},
	procedure.DocEstablishmentPhoto:   {"image/jpeg", "image/png", "image/webp"},
}

// Upload is one file in an append batch.
type Upload struct {
	DocumentType string
	OriginalName string
	Mimetype     string
	Body         io.Reader
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the document ledger. Entries are append-only dossier metadata;
// blobs go to object storage first, and the metadata batch commits atomically
// under the dossier lock.
type Service struct {
	dossiers       store.Store
	storage        ObjectStorage
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func New(dossiers store.Store, storage ObjectStorage, opts ...Option) *Service {
	s := &Service{dossiers: dossiers, storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates and stores a batch of uploads, then appends their ledger
// entries in submission order. The batch is all-or-nothing: one unacceptable
// file rejects the whole batch and no entry is written. Blobs already stored
// for a failed batch are deleted best-effort.
func (s *Service) Append(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID, uploads []Upload) (*models.Dossier, error) {
	if len(uploads) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no documents in batch")
	}

	entries := make([]models.Document, 0, len(uploads))
	stored := make([]string, 0, len(uploads))
	cleanup := func() {
		for _, key := range stored {
			if err := s.storage.Delete(ctx, key); err != nil && s.logger != nil {
				s.logger.WarnContext(ctx, "failed to delete orphaned document blob", "storage_key", key, "error", err)
			}
		}
	}

	now := requestcontext.Now(ctx)
	for i, upload := range uploads {
		if err := validateUpload(i, upload); err != nil {
			cleanup()
			return nil, err
		}
		data, err := readCapped(upload.Body)
		if err != nil {
			cleanup()
			return nil, dErrors.Wrapf(err, dErrors.CodeUnsupportedDocument, "document %d (%s)", i+1, upload.OriginalName)
		}
		key := fmt.Sprintf("dossiers/%s/%s/%s", dossierID, upload.DocumentType, uuid.NewString())
		url, err := s.storage.Put(ctx, key, upload.Mimetype, bytes.NewReader(data))
		if err != nil {
			cleanup()
			return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to store document")
		}
		stored = append(stored, key)
		entries = append(entries, models.Document{
			DocumentType: upload.DocumentType,
			OriginalName: upload.OriginalName,
			Size:         int64(len(data)),
			Mimetype:     upload.Mimetype,
			StorageKey:   key,
			URL:          url,
			UploadedAt:   now,
		})
	}

	updated, err := s.dossiers.Execute(ctx, dossierID, func(d *models.Dossier) error {
		if d.OwnerID != ownerID {
			return dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		def, err := procedure.ForType(d.ProcedureType)
		if err != nil {
			return err
		}
		for i, entry := range entries {
			if !def.KnowsDocumentType(entry.DocumentType) {
				return dErrors.Newf(dErrors.CodeUnsupportedDocument,
					"document %d: type %s is not part of procedure %s", i+1, entry.DocumentType, d.ProcedureType)
			}
		}
		d.AppendDocuments(entries)
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		cleanup()
		return nil, wrapLedgerErr(err)
	}

	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			ActorID:   requestcontext.UserID(ctx),
			DossierID: dossierID,
			Action:    audit.ActionDocumentsAppended,
			Detail:    fmt.Sprintf("%d documents", len(entries)),
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "documents appended",
			"dossier_id", dossierID,
			"count", len(entries),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return updated, nil
}

// HasRequired reports whether the dossier holds at least minCount ledger
// entries of the given type. Callers encode fan-out requirements (one identity
// document per associate) by passing the participant count as minCount.
func HasRequired(d *models.Dossier, documentType string, minCount int) bool {
	if minCount < 1 {
		minCount = 1
	}
	return d.CountDocuments(documentType) >= minCount
}

// ListByType returns the dossier's ledger entries for one document type, in
// upload order.
func (s *Service) ListByType(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID, documentType string) ([]models.Document, error) {
	d, err := s.dossiers.FindByID(ctx, dossierID)
	if err != nil {
		return nil, wrapLedgerErr(err)
	}
	if d.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
	}
	var out []models.Document
	for _, doc := range d.Documents {
		if doc.DocumentType == documentType {
			out = append(out, doc)
		}
	}
	return out, nil
}

// SignedURL returns a short-lived download URL for one stored document,
// owner-scoped.
func (s *Service) SignedURL(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID, storageKey string, ttl time.Duration) (string, error) {
	d, err := s.dossiers.FindByID(ctx, dossierID)
	if err != nil {
		return "", wrapLedgerErr(err)
	}
	if d.OwnerID != ownerID {
		return "", dErrors.New(dErrors.CodeNotFound, "dossier not found")
	}
	for _, doc := range d.Documents {
		if doc.StorageKey == storageKey {
			url, err := s.storage.SignURL(ctx, storageKey, ttl)
			if err != nil {
				return "", dErrors.Wrap(err, dErrors.CodeUpstream, "failed to sign document url")
			}
			return url, nil
		}
	}
	return "", dErrors.New(dErrors.CodeNotFound, "document not found")
}

// Open streams one stored document back by its storage key, owner-scoped.
func (s *Service) Open(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID, storageKey string) (io.ReadCloser, *models.Document, error) {
	d, err := s.dossiers.FindByID(ctx, dossierID)
	if err != nil {
		return nil, nil, wrapLedgerErr(err)
	}
	if d.OwnerID != ownerID {
		return nil, nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
	}
	for i := range d.Documents {
		if d.Documents[i].StorageKey == storageKey {
			body, err := s.storage.Get(ctx, storageKey)
			if err != nil {
				return nil, nil, dErrors.Wrap(err, dErrors.CodeUpstream, "failed to fetch document")
			}
			return body, &d.Documents[i], nil
		}
	}
	return nil, nil, dErrors.New(dErrors.CodeNotFound, "document not found")
}

func validateUpload(index int, upload Upload) error {
	if strings.TrimSpace(upload.OriginalName) == "" {
		return dErrors.Newf(dErrors.CodeBadRequest, "document %d: file name is required", index+1)
	}
	allowed, ok := allowedMimetypes[upload.DocumentType]
	if !ok {
		return dErrors.Newf(dErrors.CodeUnsupportedDocument,
			"document %d (%s): unknown document type %s", index+1, upload.OriginalName, upload.DocumentType)
	}
	mimetype := strings.ToLower(strings.TrimSpace(upload.Mimetype))
	for _, candidate := range allowed {
		if mimetype == candidate {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeUnsupportedDocument,
		"document %d (%s): mimetype %s is not accepted for %s", index+1, upload.OriginalName, upload.Mimetype, upload.DocumentType)
}

// readCapped reads at most MaxDocumentSize bytes and fails if more follow.
func readCapped(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("file exceeds %d byte limit", MaxDocumentSize)
	}
	return data, nil
}

func wrapLedgerErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "dossier not found")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}
