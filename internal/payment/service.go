package payment

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"formalitys/internal/audit"
	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/store"
	paymentmetrics "formalitys/internal/payment/metrics"
	"formalitys/internal/pricing"
	"formalitys/internal/procedure"
	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/platform/sentinel"
	"formalitys/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates payment intents and confirmations. The discount is
// computed and locked at intent creation; confirmation reuses the locked
// amounts verbatim regardless of how the owner's completed count has moved
// since.
type Service struct {
	dossiers       store.Store
	gateway        Gateway
	refindex       ReferenceIndex
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *paymentmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *paymentmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithReferenceIndex(index ReferenceIndex) Option {
	return func(s *Service) { s.refindex = index }
}

func New(dossiers store.Store, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		dossiers: dossiers,
		gateway:  gateway,
		refindex: NewInMemoryIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntentResult is returned to the client so it can drive the gateway's
// checkout flow.
type IntentResult struct {
	Reference    string        `json:"reference"`
	ClientSecret string        `json:"client_secret"`
	Quote        pricing.Quote `json:"quote"`
}

// Quote previews the price the owner would pay right now. Non-binding: the
// authoritative quote is recomputed at intent creation.
func (s *Service) Quote(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID) (pricing.Quote, error) {
	d, err := s.ownedDossier(ctx, ownerID, dossierID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return s.quoteFor(ctx, d)
}

// CreateIntent computes the discounted price, creates a gateway intent for it,
// and records the pending payment on the dossier. Only a DRAFT dossier sitting
// at its payment step can open an intent. A pending unconfirmed intent is
// replaced; a confirmed one refuses.
//
// The gateway call happens outside the dossier lock so a slow provider never
// stalls other writers. If the dossier state changes between the call and the
// commit, the orphaned intent simply expires provider-side.
func (s *Service) CreateIntent(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID) (IntentResult, error) {
	d, err := s.ownedDossier(ctx, ownerID, dossierID)
	if err != nil {
		return IntentResult{}, err
	}
	if err := checkIntentState(d); err != nil {
		s.countIntentFailure()
		return IntentResult{}, err
	}

	quote, err := s.quoteFor(ctx, d)
	if err != nil {
		s.countIntentFailure()
		return IntentResult{}, err
	}

	// The quote fields ride along as opaque gateway metadata so provider-side
	// reconciliation and receipts can see the locked discount.
	intent, err := s.gateway.CreateIntent(ctx, quote.FinalPrice, quote.Currency, map[string]string{
		"dossier_id":          dossierID.String(),
		"procedure_type":      string(d.ProcedureType),
		"original_price":      strconv.FormatInt(quote.OriginalPrice, 10),
		"discount_percentage": strconv.Itoa(quote.DiscountPercentage),
		"discount_amount":     strconv.FormatInt(quote.DiscountAmount, 10),
	})
	if err != nil {
		s.countIntentFailure()
		return IntentResult{}, dErrors.Wrap(err, dErrors.CodeUpstream, "payment gateway rejected intent")
	}

	now := requestcontext.Now(ctx)
	_, err = s.dossiers.Execute(ctx, dossierID, func(d *models.Dossier) error {
		if d.OwnerID != ownerID {
			return dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		if err := checkIntentState(d); err != nil {
			return err
		}
		d.Payment = &models.PaymentRecord{
			GatewayReference:   intent.Reference,
			Amount:             quote.FinalPrice,
			Currency:           quote.Currency,
			OriginalPrice:      quote.OriginalPrice,
			DiscountPercentage: quote.DiscountPercentage,
			DiscountAmount:     quote.DiscountAmount,
			AddOns:             quote.AddOns,
			CreatedAt:          now,
		}
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.countIntentFailure()
		return IntentResult{}, wrapPaymentErr(err)
	}

	if err := s.refindex.Put(ctx, intent.Reference, dossierID); err != nil && s.logger != nil {
		// Webhook handling falls back to the store scan on index misses.
		s.logger.WarnContext(ctx, "failed to index gateway reference", "reference", intent.Reference, "error", err)
	}

	s.emitAudit(ctx, dossierID, audit.ActionPaymentIntentCreated, intent.Reference)
	if s.metrics != nil {
		s.metrics.IntentsCreated.Inc()
		s.metrics.DiscountedAmounts.Observe(float64(quote.FinalPrice))
	}
	return IntentResult{Reference: intent.Reference, ClientSecret: intent.ClientSecret, Quote: quote}, nil
}

// Confirm settles a gateway webhook for a reference. Unknown references fail
// with not_found and mutate nothing. Replays of an already-confirmed payment
// are acknowledged as no-ops so at-least-once webhook delivery stays safe.
func (s *Service) Confirm(ctx context.Context, gatewayReference string, succeeded bool) (*models.Dossier, error) {
	dossierID, err := s.resolveReference(ctx, gatewayReference)
	if err != nil {
		return nil, err
	}

	if !succeeded {
		// A failed charge leaves the pending record in place; the owner can
		// open a fresh intent.
		d, err := s.dossiers.FindByID(ctx, dossierID)
		if err != nil {
			return nil, wrapPaymentErr(err)
		}
		if err := d.CanConfirmPayment(gatewayReference); err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "payment failed at gateway", "dossier_id", dossierID, "reference", gatewayReference)
		}
		return d, nil
	}

	now := requestcontext.Now(ctx)
	var replay bool
	updated, err := s.dossiers.Execute(ctx, dossierID, func(d *models.Dossier) error {
		if err := d.CanConfirmPayment(gatewayReference); err != nil {
			return err
		}
		replay = d.Payment.Confirmed
		d.ApplyPaymentConfirmation(paymentStepOf(d), now)
		return nil
	})
	if err != nil {
		return nil, wrapPaymentErr(err)
	}

	if replay {
		if s.metrics != nil {
			s.metrics.ConfirmReplays.Inc()
		}
		return updated, nil
	}

	s.emitAudit(ctx, updated.ID, audit.ActionPaymentConfirmed, gatewayReference)
	if s.metrics != nil {
		s.metrics.Confirmations.Inc()
	}
	return updated, nil
}

func (s *Service) ownedDossier(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID) (*models.Dossier, error) {
	d, err := s.dossiers.FindByID(ctx, dossierID)
	if err != nil {
		return nil, wrapPaymentErr(err)
	}
	if d.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
	}
	return d, nil
}

func (s *Service) quoteFor(ctx context.Context, d *models.Dossier) (pricing.Quote, error) {
	baseFee, err := pricing.BaseFee(d.ProcedureType)
	if err != nil {
		return pricing.Quote{}, err
	}
	completed, err := s.dossiers.CountCompleted(ctx, d.OwnerID, d.ProcedureType)
	if err != nil {
		return pricing.Quote{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count completed dossiers")
	}
	return pricing.Compute(completed, baseFee, pricing.AddOnsFor(d.ProcedureType, d.FormData)), nil
}

// resolveReference maps a gateway reference to its dossier, trying the index
// first and the store second.
func (s *Service) resolveReference(ctx context.Context, gatewayReference string) (uuid.UUID, error) {
	if id, err := s.refindex.Lookup(ctx, gatewayReference); err == nil {
		return id, nil
	}
	d, err := s.dossiers.FindByGatewayReference(ctx, gatewayReference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return uuid.Nil, dErrors.New(dErrors.CodeNotFound, "unknown gateway reference")
		}
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve gateway reference")
	}
	return d.ID, nil
}

func (s *Service) emitAudit(ctx context.Context, dossierID uuid.UUID, action string, detail string) {
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		ActorID:   requestcontext.UserID(ctx),
		DossierID: dossierID,
		Action:    action,
		Detail:    detail,
	})
}

func (s *Service) countIntentFailure() {
	if s.metrics != nil {
		s.metrics.IntentFailures.Inc()
	}
}

func checkIntentState(d *models.Dossier) error {
	if d.Status != models.StatusDraft {
		return dErrors.Newf(dErrors.CodeInvalidState, "dossier is %s, only DRAFT dossiers can open a payment intent", d.Status)
	}
	if d.CurrentStep != paymentStepOf(d) {
		return dErrors.Newf(dErrors.CodeInvalidState, "dossier is at step %d, payment opens at step %d", d.CurrentStep, paymentStepOf(d))
	}
	if d.PaymentConfirmed() {
		return dErrors.New(dErrors.CodeInvalidState, "payment is already confirmed")
	}
	return nil
}

func paymentStepOf(d *models.Dossier) int {
	def, err := procedure.ForType(d.ProcedureType)
	if err != nil {
		return 0
	}
	return def.PaymentStep
}

func wrapPaymentErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "dossier not found")
	case errors.Is(err, sentinel.ErrVersionConflict):
		return dErrors.New(dErrors.CodeConflict, "dossier was modified concurrently, retry")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment operation failed")
	}
}
