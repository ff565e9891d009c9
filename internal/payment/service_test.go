package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"formalitys/internal/audit"
	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/store"
	"formalitys/internal/payment"
	"formalitys/internal/pricing"
	dErrors "formalitys/pkg/domain-errors"
)

type PaymentSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	gateway *payment.FakeGateway
	audits  *audit.InMemoryStore
	svc     *payment.Service
	ownerID uuid.UUID
}

func TestPaymentSuite(t *testing.T) {
	suite.Run(t, new(PaymentSuite))
}

func (s *PaymentSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.gateway = payment.NewFakeGateway()
	s.audits = audit.NewInMemoryStore()
	s.svc = payment.New(s.store, s.gateway,
		payment.WithAuditPublisher(audit.NewPublisher(s.audits)),
	)
	s.ownerID = uuid.New()
}

func (s *PaymentSuite) seed(procedureType models.ProcedureType, mutate func(d *models.Dossier)) *models.Dossier {
	d, err := models.NewDossier(uuid.New(), s.ownerID, procedureType, time.Now())
	s.Require().NoError(err)
	if mutate != nil {
		mutate(d)
	}
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func (s *PaymentSuite) seedAtPaymentStep(procedureType models.ProcedureType) *models.Dossier {
	return s.seed(procedureType, func(d *models.Dossier) {
		d.CurrentStep = 4
	})
}

func (s *PaymentSuite) seedCompleted(procedureType models.ProcedureType) {
	s.seed(procedureType, func(d *models.Dossier) {
		d.CurrentStep = 7
		d.Status = models.StatusCompleted
	})
}

func (s *PaymentSuite) TestFirstDossierPaysFullPrice() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(0, result.Quote.DiscountPercentage)
	s.Equal(pricing.CompanyBaseFee, result.Quote.FinalPrice)
	s.Equal("MAD", result.Quote.Currency)

	charged, ok := s.gateway.Amount(result.Reference)
	s.Require().True(ok)
	s.Equal(pricing.CompanyBaseFee, charged)

	reloaded, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().NotNil(reloaded.Payment)
	s.Equal(result.Reference, reloaded.Payment.GatewayReference)
	s.False(reloaded.Payment.Confirmed)
}

func (s *PaymentSuite) TestSecondDossierGetsLoyaltyDiscount() {
	s.seedCompleted(models.ProcedureCompany)
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(15, result.Quote.DiscountPercentage)
	s.Equal(int64(49500), result.Quote.DiscountAmount)
	s.Equal(int64(280500), result.Quote.FinalPrice)
}

func (s *PaymentSuite) TestIntentMetadataCarriesLockedQuote() {
	s.seedCompleted(models.ProcedureCompany)
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)

	metadata, ok := s.gateway.Metadata(result.Reference)
	s.Require().True(ok)
	s.Equal(d.ID.String(), metadata["dossier_id"])
	s.Equal("COMPANY", metadata["procedure_type"])
	s.Equal("330000", metadata["original_price"])
	s.Equal("15", metadata["discount_percentage"])
	s.Equal("49500", metadata["discount_amount"])
}

func (s *PaymentSuite) TestDiscountCountsOnlySameProcedureType() {
	s.seedCompleted(models.ProcedureTourism)
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(0, result.Quote.DiscountPercentage)
}

func (s *PaymentSuite) TestDomiciliationAddOnChargedAtFullPrice() {
	s.seedCompleted(models.ProcedureCompany)
	d := s.seed(models.ProcedureCompany, func(d *models.Dossier) {
		d.CurrentStep = 4
		d.FormData = map[string]any{"domiciliation": true}
	})

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(pricing.DomiciliationFee, result.Quote.AddOns)
	// Discount applies to the base fee only.
	s.Equal(int64(280500+90000), result.Quote.FinalPrice)
}

func (s *PaymentSuite) TestIntentRefusedOffPaymentStep() {
	d := s.seed(models.ProcedureCompany, nil)

	_, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *PaymentSuite) TestIntentRefusedAfterConfirmation() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	_, err = s.svc.Confirm(s.ctx, result.Reference, true)
	s.Require().NoError(err)

	_, err = s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *PaymentSuite) TestNewIntentReplacesPendingOne() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	first, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	second, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.NotEqual(first.Reference, second.Reference)

	reloaded, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(second.Reference, reloaded.Payment.GatewayReference)
}

func (s *PaymentSuite) TestGatewayFailureMapsToUpstream() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	svc := payment.New(s.store, failingGateway{})

	_, err := svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUpstream))

	reloaded, loadErr := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(loadErr)
	s.Nil(reloaded.Payment)
}

func (s *PaymentSuite) TestConfirmMovesDossierToPaidAndPastPaymentStep() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)

	updated, err := s.svc.Confirm(s.ctx, result.Reference, true)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, updated.Status)
	s.Equal(5, updated.CurrentStep)
	s.True(updated.Payment.Confirmed)
	s.NotNil(updated.Payment.ConfirmedAt)
}

func (s *PaymentSuite) TestConfirmUnknownReferenceMutatesNothing() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	_, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)

	_, err = s.svc.Confirm(s.ctx, "pi_unknown", true)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))

	reloaded, loadErr := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(loadErr)
	s.Equal(models.StatusDraft, reloaded.Status)
	s.False(reloaded.Payment.Confirmed)
}

func (s *PaymentSuite) TestConfirmReplayIsNoOp() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)

	first, err := s.svc.Confirm(s.ctx, result.Reference, true)
	s.Require().NoError(err)
	firstConfirmedAt := *first.Payment.ConfirmedAt

	replayed, err := s.svc.Confirm(s.ctx, result.Reference, true)
	s.Require().NoError(err)
	s.Equal(models.StatusPaid, replayed.Status)
	s.Equal(first.CurrentStep, replayed.CurrentStep)
	s.Equal(firstConfirmedAt, *replayed.Payment.ConfirmedAt)

	events, err := s.audits.ListByDossier(s.ctx, d.ID)
	s.Require().NoError(err)
	confirmEvents := 0
	for _, e := range events {
		if e.Action == audit.ActionPaymentConfirmed {
			confirmEvents++
		}
	}
	s.Equal(1, confirmEvents)
}

func (s *PaymentSuite) TestFailedChargeLeavesDossierDraft() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)

	unchanged, err := s.svc.Confirm(s.ctx, result.Reference, false)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, unchanged.Status)
	s.Equal(4, unchanged.CurrentStep)
	s.False(unchanged.Payment.Confirmed)
}

func (s *PaymentSuite) TestDiscountLockedAtIntentCreation() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)
	result, err := s.svc.CreateIntent(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(0, result.Quote.DiscountPercentage)

	// Another dossier completes between intent and webhook; the locked
	// amounts still apply.
	s.seedCompleted(models.ProcedureCompany)

	updated, err := s.svc.Confirm(s.ctx, result.Reference, true)
	s.Require().NoError(err)
	s.Equal(0, updated.Payment.DiscountPercentage)
	s.Equal(pricing.CompanyBaseFee, updated.Payment.Amount)
}

func (s *PaymentSuite) TestQuotePreviewDoesNotTouchDossier() {
	s.seedCompleted(models.ProcedureCompany)
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	quote, err := s.svc.Quote(s.ctx, s.ownerID, d.ID)
	s.Require().NoError(err)
	s.Equal(15, quote.DiscountPercentage)

	reloaded, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Nil(reloaded.Payment)
}

func (s *PaymentSuite) TestIntentHidesForeignDossiers() {
	d := s.seedAtPaymentStep(models.ProcedureCompany)

	_, err := s.svc.CreateIntent(s.ctx, uuid.New(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type failingGateway struct{}

func (failingGateway) CreateIntent(context.Context, int64, string, map[string]string) (payment.Intent, error) {
	return payment.Intent{}, errors.New("gateway unavailable")
}
