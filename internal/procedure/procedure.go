// Package procedure declares the per-step rule tables for both administrative
// procedures and the generic validator that interprets them. Rules are data,
// not code, so the two procedure variants stay comparably testable.
package procedure

import (
	"formalitys/internal/dossier/models"
	dErrors "formalitys/pkg/domain-errors"
)

// StepKind selects which rule interpreter applies to a step.
type StepKind string

const (
	StepForm         StepKind = "form"
	StepParticipants StepKind = "participants"
	StepDocuments    StepKind = "documents"
	StepPayment      StepKind = "payment"
	StepTerminal     StepKind = "terminal"
)

// FieldKind selects the shape check for a declared field.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldPhone  FieldKind = "phone"
	FieldEmail  FieldKind = "email"
	FieldNumber FieldKind = "number"
)

// FieldRule declares one form field and its shape.
type FieldRule struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// ParticipantRule declares the constraints on a participant list step.
type ParticipantRule struct {
	// Field is the form data key holding the participant list.
	Field string
	// Label names one participant in error messages ("associate", "owner").
	Label string
	// RequireManager demands at least one participant flagged isManager.
	RequireManager bool
	// RequireRole demands a declared role on every participant.
	RequireRole bool
	// RegistryNumberRoles lists roles that additionally require a
	// businessRegistryNumber on the participant.
	RegistryNumberRoles []string
}

// DocumentRule declares a completeness requirement on the document ledger.
type DocumentRule struct {
	Type string
	// MinCount is the fixed number of required entries (1 for 1:1 types).
	MinCount int
	// PerParticipant scales the requirement to one entry per declared
	// participant instead of MinCount.
	PerParticipant bool
}

// Step is one entry in a procedure's rule table.
type Step struct {
	Number       int
	Name         string
	Kind         StepKind
	Fields       []FieldRule
	Participants *ParticipantRule
	Documents    []DocumentRule
}

// Definition is the full rule table for one procedure type.
type Definition struct {
	Type        models.ProcedureType
	Steps       []Step
	PaymentStep int
}

// FinalStep is the terminal step number.
func (d Definition) FinalStep() int { return len(d.Steps) }

// Step returns the rule table entry for a step number.
func (d Definition) Step(number int) (Step, bool) {
	if number < 1 || number > len(d.Steps) {
		return Step{}, false
	}
	return d.Steps[number-1], true
}

// ParticipantField returns the form data key holding participants, if the
// procedure has a participant step.
func (d Definition) ParticipantField() string {
	for _, step := range d.Steps {
		if step.Kind == StepParticipants && step.Participants != nil {
			return step.Participants.Field
		}
	}
	return ""
}

// KnowsDocumentType reports whether any step of the procedure requires the
// given document type.
func (d Definition) KnowsDocumentType(documentType string) bool {
	for _, step := range d.Steps {
		for _, rule := range step.Documents {
			if rule.Type == documentType {
				return true
			}
		}
	}
	return false
}

// ForType resolves the rule table for a procedure type.
func ForType(procedureType models.ProcedureType) (Definition, error) {
	switch procedureType {
	case models.ProcedureCompany:
		return companyDefinition, nil
	case models.ProcedureTourism:
		return tourismDefinition, nil
	default:
		return Definition{}, dErrors.New(dErrors.CodeBadRequest, "unknown procedure type: "+string(procedureType))
	}
}
