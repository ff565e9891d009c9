package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "formalitys/pkg/domain-errors"
)

// ProcedureType identifies which administrative procedure a dossier follows.
// Fixed at creation, immutable afterwards.
type ProcedureType string

const (
	ProcedureCompany ProcedureType = "COMPANY"
	ProcedureTourism ProcedureType = "TOURISM"
)

func (p ProcedureType) Valid() bool {
	return p == ProcedureCompany || p == ProcedureTourism
}

// Status is the dossier lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPaid      Status = "PAID"
	StatusCompleted Status = "COMPLETED"
)

// CanTransitionTo enforces the DRAFT -> PAID -> COMPLETED ladder.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusPaid
	case StatusPaid:
		return next == StatusCompleted
	default:
		return false
	}
}

// Document is one uploaded file's metadata. Entries are append-only: a
// corrected document never silently replaces history before review.
type Document struct {
	DocumentType string    `json:"document_type"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	StorageKey   string    `json:"storage_key"`
	URL          string    `json:"url,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// PaymentRecord is set once a payment intent is created. The discount fields
// are locked in at intent creation time and reused verbatim on the receipt.
type PaymentRecord struct {
	GatewayReference   string     `json:"gateway_reference"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"`
	OriginalPrice      int64      `json:"original_price"`
	DiscountPercentage int        `json:"discount_percentage"`
	DiscountAmount     int64      `json:"discount_amount"`
	AddOns             int64      `json:"add_ons"`
	Confirmed          bool       `json:"confirmed"`
	CreatedAt          time.Time  `json:"created_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
}

// Dossier is the aggregate root for one procedure instance.
//
// Invariants:
//   - ProcedureType never changes after creation
//   - CurrentStep is monotonically non-decreasing except via admin override
//   - Status == PAID or COMPLETED implies Payment != nil && Payment.Confirmed
//   - Every mutation bumps UpdatedAt; the store bumps Version on commit
type Dossier struct {
	ID            uuid.UUID      `json:"id"`
	OwnerID       uuid.UUID      `json:"owner_id"`
	ProcedureType ProcedureType  `json:"procedure_type"`
	CurrentStep   int            `json:"current_step"`
	Status        Status         `json:"status"`
	FormData      map[string]any `json:"form_data"`
	Documents     []Document     `json:"documents"`
	Payment       *PaymentRecord `json:"payment,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewDossier constructs a dossier in DRAFT at step 1.
func NewDossier(id uuid.UUID, ownerID uuid.UUID, procedureType ProcedureType, now time.Time) (*Dossier, error) {
	if !procedureType.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown procedure type: "+string(procedureType))
	}
	if ownerID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "dossier owner is required")
	}
	return &Dossier{
		ID:            id,
		OwnerID:       ownerID,
		ProcedureType: procedureType,
		CurrentStep:   1,
		Status:        StatusDraft,
		FormData:      map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MergeFormData applies shallow per-field overwrite semantics. Fields listed
// in clear are removed before the merge so a caller can reset a value
// explicitly.
func (d *Dossier) MergeFormData(data map[string]any, clear []string) {
	if d.FormData == nil {
		d.FormData = map[string]any{}
	}
	for _, field := range clear {
		delete(d.FormData, field)
	}
	for field, value := range data {
		d.FormData[field] = value
	}
}

// AppendDocuments adds ledger entries in submission order.
func (d *Dossier) AppendDocuments(entries []Document) {
	d.Documents = append(d.Documents, entries...)
}

// CountDocuments returns how many entries carry the given document type.
func (d *Dossier) CountDocuments(documentType string) int {
	n := 0
	for _, doc := range d.Documents {
		if doc.DocumentType == documentType {
			n++
		}
	}
	return n
}

// PaymentConfirmed reports whether a confirmed payment record exists.
func (d *Dossier) PaymentConfirmed() bool {
	return d.Payment != nil && d.Payment.Confirmed
}

// CanConfirmPayment checks that the given gateway reference belongs to this
// dossier's pending payment record.
func (d *Dossier) CanConfirmPayment(gatewayReference string) error {
	if d.Payment == nil || d.Payment.GatewayReference != gatewayReference {
		return dErrors.New(dErrors.CodeNotFound, "no payment record for gateway reference")
	}
	return nil
}

// ApplyPaymentConfirmation marks the payment confirmed and moves the dossier
// to PAID. The step advances past the payment step exactly once; replays are
// no-ops by construction.
func (d *Dossier) ApplyPaymentConfirmation(paymentStep int, now time.Time) {
	if d.Payment.Confirmed {
		return
	}
	d.Payment.Confirmed = true
	d.Payment.ConfirmedAt = &now
	if d.Status == StatusDraft {
		d.Status = StatusPaid
	}
	if d.CurrentStep == paymentStep {
		d.CurrentStep++
	}
	d.UpdatedAt = now
}

// ApplyCompletion marks the dossier COMPLETED, idempotently.
func (d *Dossier) ApplyCompletion(now time.Time) {
	if d.Status == StatusCompleted {
		return
	}
	d.Status = StatusCompleted
	d.UpdatedAt = now
}

// Clone returns a copy safe to hand to callers of the in-memory store.
// FormData is copied at the top level; nested values are treated as immutable
// because MergeFormData only ever replaces whole fields.
func (d *Dossier) Clone() *Dossier {
	clone := *d
	clone.FormData = make(map[string]any, len(d.FormData))
	for k, v := range d.FormData {
		clone.FormData[k] = v
	}
	clone.Documents = append([]Document(nil), d.Documents...)
	if d.Payment != nil {
		payment := *d.Payment
		clone.Payment = &payment
	}
	return &clone
}
