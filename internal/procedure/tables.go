package procedure

import "formalitys/internal/dossier/models"

// Document type tags shared with the ledger.
const (
	DocIdentity             = "identity_document"
	DocLeaseContract        = "lease_contract"
	DocPropertyDeed         = "property_deed"
	DocHabitationPermit     = "habitation_permit"
	DocInsuranceCertificate = "insurance_certificate"
	DocEstablishmentPhoto   = "establishment_photo"
)

// Roles on tourism owners that imply legal representation and therefore a
// business registry number.
var tourismRegistryRoles = []string{"legal_representative", "delegated_manager"}

var companyDefinition = Definition{
	Type:        models.ProcedureCompany,
	PaymentStep: 4,
	Steps: []Step{
		{
			Number: 1,
			Name:   "company-details",
			Kind:   StepForm,
			Fields: []FieldRule{
				{Name: "companyName", Kind: FieldText, Required: true},
				{Name: "legalForm", Kind: FieldText, Required: true},
				{Name: "activitySector", Kind: FieldText, Required: true},
				{Name: "capital", Kind: FieldNumber, Required: true},
				{Name: "headquartersAddress", Kind: FieldText, Required: true},
				{Name: "headquartersCity", Kind: FieldText, Required: true},
				{Name: "contactPhone", Kind: FieldPhone, Required: true},
				{Name: "contactEmail", Kind: FieldEmail, Required: true},
			},
		},
		{
			Number: 2,
			Name:   "associates",
			Kind:   StepParticipants,
			Participants: &ParticipantRule{
				Field:          "associates",
				Label:          "associate",
				RequireManager: true,
			},
		},
		{
			Number: 3,
			Name:   "options-and-identity",
			Kind:   StepDocuments,
			Fields: []FieldRule{
				// Optional add-on selection; priced at intent creation.
				{Name: "domiciliation", Kind: FieldText, Required: false},
			},
			Documents: []DocumentRule{
				{Type: DocIdentity, PerParticipant: true},
			},
		},
		{
			Number: 4,
			Name:   "payment",
			Kind:   StepPayment,
		},
		{
			Number: 5,
			Name:   "registered-office",
			Kind:   StepForm,
			Fields: []FieldRule{
				{Name: "officeAddress", Kind: FieldText, Required: true},
				{Name: "officeCity", Kind: FieldText, Required: true},
			},
		},
		{
			Number: 6,
			Name:   "legal-documents",
			Kind:   StepDocuments,
			Documents: []DocumentRule{
				{Type: DocLeaseContract, MinCount: 1},
			},
		},
		{
			Number: 7,
			Name:   "confirmation",
			Kind:   StepTerminal,
		},
	},
}

var tourismDefinition = Definition{
	Type:        models.ProcedureTourism,
	PaymentStep: 4,
	Steps: []Step{
		{
			Number: 1,
			Name:   "establishment-details",
			Kind:   StepForm,
			Fields: []FieldRule{
				{Name: "establishmentName", Kind: FieldText, Required: true},
				{Name: "category", Kind: FieldText, Required: true},
				{Name: "address", Kind: FieldText, Required: true},
				{Name: "city", Kind: FieldText, Required: true},
				{Name: "capacity", Kind: FieldNumber, Required: true},
				{Name: "contactPhone", Kind: FieldPhone, Required: true},
				{Name: "contactEmail", Kind: FieldEmail, Required: true},
			},
		},
		{
			Number: 2,
			Name:   "owners",
			Kind:   StepParticipants,
			Participants: &ParticipantRule{
				Field:               "owners",
				Label:               "owner",
				RequireRole:         true,
				RegistryNumberRoles: tourismRegistryRoles,
			},
		},
		{
			Number: 3,
			Name:   "options-and-identity",
			Kind:   StepDocuments,
			Documents: []DocumentRule{
				{Type: DocIdentity, PerParticipant: true},
			},
		},
		{
			Number: 4,
			Name:   "payment",
			Kind:   StepPayment,
		},
		{
			Number: 5,
			Name:   "establishment-documents",
			Kind:   StepDocuments,
			Documents: []DocumentRule{
				{Type: DocPropertyDeed, MinCount: 1},
				{Type: DocHabitationPermit, MinCount: 1},
				{Type: DocInsuranceCertificate, MinCount: 1},
				{Type: DocEstablishmentPhoto, MinCount: 1},
			},
		},
		{
			Number: 6,
			Name:   "final-questionnaire",
			Kind:   StepTerminal,
		},
	},
}
