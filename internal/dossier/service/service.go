package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"formalitys/internal/audit"
	dossiermetrics "formalitys/internal/dossier/metrics"
	"formalitys/internal/dossier/models"
	"formalitys/internal/dossier/store"
	"formalitys/internal/procedure"
	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/platform/sentinel"
	"formalitys/pkg/requestcontext"
)

// AuditPublisher records dossier lifecycle events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the dossier state machine. It is the only writer of the
// currentStep and status fields; every mutation runs inside the store's
// Execute lock so step saves, uploads, and payment confirmations never
// interleave on the same dossier.
type Service struct {
	dossiers       store.Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *dossiermetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *dossiermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a Service.
func New(dossiers store.Store, opts ...Option) *Service {
	s := &Service{dossiers: dossiers}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new dossier in DRAFT at step 1.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, procedureType models.ProcedureType) (*models.Dossier, error) {
	if _, err := procedure.ForType(procedureType); err != nil {
		return nil, err
	}
	d, err := models.NewDossier(uuid.New(), ownerID, procedureType, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.dossiers.Create(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create dossier")
	}
	s.logAudit(ctx, d.ID, audit.ActionDossierCreated, string(procedureType))
	if s.metrics != nil {
		s.metrics.DossiersCreated.Inc()
	}
	return d, nil
}

// Get returns a dossier scoped to its owner. A mismatched owner gets
// not_found rather than forbidden so dossier IDs don't leak.
func (s *Service) Get(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID) (*models.Dossier, error) {
	d, err := s.dossiers.FindByID(ctx, dossierID)
	if err != nil {
		return nil, wrapDossierErr(err)
	}
	if d.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "dossier not found")
	}
	return d, nil
}

// List returns all dossiers owned by a user.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Dossier, error) {
	dossiers, err := s.dossiers.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list dossiers")
	}
	return dossiers, nil
}

// SaveStepInput carries one step submission.
type SaveStepInput struct {
	Step int
	Data map[string]any
	// Clear lists form data fields to remove before merging.
	Clear []string
	// Draft saves the merged data without validating or advancing. Steps
	// allow revisiting, so storing invalid intermediate data is tolerated.
	Draft bool
}

// SaveStep merges the submitted data and, unless saving a draft, validates
// the step and advances currentStep by exactly one. All-or-nothing: a failed
// validation or gate leaves the dossier untouched.
//
// Idempotence: re-submitting an already-passed step merges data but never
// advances past the step already reached, so replays cannot double-advance.
func (s *Service) SaveStep(ctx context.Context, ownerID uuid.UUID, dossierID uuid.UUID, in SaveStepInput) (*models.Dossier, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSaveStep(start)
		}
	}()

	var advanced bool
	var completed bool
	updated, err := s.dossiers.Execute(ctx, dossierID, func(d *models.Dossier) error {
		if d.OwnerID != ownerID {
			return dErrors.New(dErrors.CodeNotFound, "dossier not found")
		}
		def, err := procedure.ForType(d.ProcedureType)
		if err != nil {
			return err
		}
		if in.Step < 1 || in.Step > def.FinalStep() {
			return dErrors.Newf(dErrors.CodeBadRequest, "step %d is out of range for procedure %s", in.Step, d.ProcedureType)
		}
		if in.Step > d.CurrentStep {
			return dErrors.Newf(dErrors.CodeInvalidState, "cannot skip ahead to step %d from step %d", in.Step, d.CurrentStep)
		}

		now := requestcontext.Now(ctx)
		d.MergeFormData(in.Data, in.Clear)
		d.UpdatedAt = now

		if in.Draft {
			return nil
		}

		step, _ := def.Step(in.Step)
		reasons := procedure.Validate(def, in.Step, procedure.SnapshotOf(d))
		if len(reasons) > 0 {
			// The payment gate is a state-machine refusal, not a form
			// correction the owner can make.
			if step.Kind == procedure.StepPayment {
				return dErrors.New(dErrors.CodeInvalidState, "payment must be confirmed before advancing")
			}
			return dErrors.Validation(reasons)
		}

		if in.Step == d.CurrentStep && d.CurrentStep < def.FinalStep() {
			d.CurrentStep++
			advanced = true
			if d.CurrentStep == def.FinalStep() {
				completed = d.Status != models.StatusCompleted
				d.ApplyCompletion(now)
			}
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) && s.metrics != nil {
			s.metrics.ValidationFailures.Inc()
		}
		return nil, wrapDossierErr(err)
	}

	if advanced {
		s.logAudit(ctx, updated.ID, audit.ActionStepAdvanced, fmt.Sprintf("step %d", updated.CurrentStep))
		if s.metrics != nil {
			s.metrics.StepsAdvanced.Inc()
		}
	}
	if completed {
		s.logAudit(ctx, updated.ID, audit.ActionDossierCompleted, "")
	}
	return updated, nil
}

// AdminOverride sets status and/or currentStep directly, bypassing the
// validator. This is the explicit escape hatch for administrative
// correction; it is never exposed to the owning user.
func (s *Service) AdminOverride(ctx context.Context, dossierID uuid.UUID, status *models.Status, currentStep *int) (*models.Dossier, error) {
	if status == nil && currentStep == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "nothing to override")
	}
	updated, err := s.dossiers.Execute(ctx, dossierID, func(d *models.Dossier) error {
		def, err := procedure.ForType(d.ProcedureType)
		if err != nil {
			return err
		}
		if currentStep != nil {
			if *currentStep < 1 || *currentStep > def.FinalStep() {
				return dErrors.Newf(dErrors.CodeBadRequest, "step %d is out of range", *currentStep)
			}
			d.CurrentStep = *currentStep
		}
		if status != nil {
			switch *status {
			case models.StatusDraft, models.StatusPaid, models.StatusCompleted:
				d.Status = *status
			default:
				return dErrors.New(dErrors.CodeBadRequest, "unknown status: "+string(*status))
			}
		}
		d.UpdatedAt = requestcontext.Now(ctx)
		return nil
	})
	if err != nil {
		return nil, wrapDossierErr(err)
	}
	s.logAudit(ctx, updated.ID, audit.ActionAdminOverride,
		fmt.Sprintf("status=%s step=%d", updated.Status, updated.CurrentStep))
	return updated, nil
}

func (s *Service) logAudit(ctx context.Context, dossierID uuid.UUID, action string, detail string) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, action,
			"dossier_id", dossierID,
			"detail", detail,
			"request_id", requestcontext.RequestID(ctx),
			"log_type", "audit",
		)
	}
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

func wrapDossierErr(err error) error {
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
		return dErrors.Wrap(err, dErrors.CodeInternal, "dossier operation failed")
	}
}
