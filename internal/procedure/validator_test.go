package procedure

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"formalitys/internal/dossier/models"
)

type ValidatorSuite struct {
	suite.Suite
	company Definition
	tourism Definition
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupSuite() {
	var err error
	s.company, err = ForType(models.ProcedureCompany)
	s.Require().NoError(err)
	s.tourism, err = ForType(models.ProcedureTourism)
	s.Require().NoError(err)
}

func validAssociate(manager bool) map[string]any {
	return map[string]any{
		"name":      "Yassine Alami",
		"idNumber":  "AB123456",
		"address":   "12 Rue des Orangers, Casablanca",
		"phone":     "+212 600-112233",
		"email":     "yassine@example.ma",
		"isManager": manager,
	}
}

func (s *ValidatorSuite) TestDefinitions() {
	s.Run("company has seven steps with payment at four", func() {
		s.Len(s.company.Steps, 7)
		s.Equal(4, s.company.PaymentStep)
		s.Equal(7, s.company.FinalStep())
	})

	s.Run("tourism has six steps with payment at four", func() {
		s.Len(s.tourism.Steps, 6)
		s.Equal(4, s.tourism.PaymentStep)
	})

	s.Run("unknown procedure type is rejected", func() {
		_, err := ForType(models.ProcedureType("FISHING"))
		s.Error(err)
	})
}

func (s *ValidatorSuite) TestFormStep() {
	s.Run("accepts a complete company details step", func() {
		snap := Snapshot{FormData: map[string]any{
			"companyName":         "Atlas Ventures SARL",
			"legalForm":           "SARL",
			"activitySector":      "consulting",
			"capital":             float64(100000),
			"headquartersAddress": "45 Bd Zerktouni",
			"headquartersCity":    "Casablanca",
			"contactPhone":        "0522-334455",
			"contactEmail":        "contact@atlas.ma",
		}}
		s.Empty(Validate(s.company, 1, snap))
	})

	s.Run("accumulates every violation instead of short-circuiting", func() {
		snap := Snapshot{FormData: map[string]any{
			"companyName":  "  ",
			"capital":      "not-a-number",
			"contactPhone": "abc",
			"contactEmail": "nope",
		}}
		reasons := Validate(s.company, 1, snap)
		s.Contains(reasons, "companyName is required")
		s.Contains(reasons, "capital must be a number")
		s.Contains(reasons, "contactPhone is not a valid phone number")
		s.Contains(reasons, "contactEmail is not a valid email address")
		s.Contains(reasons, "legalForm is required")
	})

	s.Run("numeric fields accept string digits", func() {
		snap := Snapshot{FormData: map[string]any{"capacity": "42"}}
		reasons := Validate(s.tourism, 1, snap)
		s.NotContains(reasons, "capacity must be a number")
	})
}

func (s *ValidatorSuite) TestParticipantStep() {
	s.Run("requires at least one associate", func() {
		reasons := Validate(s.company, 2, Snapshot{FormData: map[string]any{}})
		s.Equal([]string{"at least one associate is required"}, reasons)
	})

	s.Run("flags a missing phone with a phone-specific message", func() {
		associate := validAssociate(true)
		delete(associate, "phone")
		snap := Snapshot{FormData: map[string]any{"associates": []any{associate}}}
		reasons := Validate(s.company, 2, snap)
		s.Len(reasons, 1)
		s.Contains(reasons[0], "phone")
	})

	s.Run("requires a manager among company associates", func() {
		snap := Snapshot{FormData: map[string]any{"associates": []any{validAssociate(false)}}}
		reasons := Validate(s.company, 2, snap)
		s.Contains(reasons, "at least one associate must be flagged as manager")
	})

	s.Run("tourism owners need a role", func() {
		owner := validAssociate(false)
		snap := Snapshot{FormData: map[string]any{"owners": []any{owner}}}
		reasons := Validate(s.tourism, 2, snap)
		s.Contains(reasons, "owner 1: role is required")
	})

	s.Run("legal representative role requires a registry number", func() {
		owner := validAssociate(false)
		owner["role"] = "legal_representative"
		snap := Snapshot{FormData: map[string]any{"owners": []any{owner}}}
		reasons := Validate(s.tourism, 2, snap)
		s.Contains(reasons, "owner 1: businessRegistryNumber is required for role legal_representative")

		owner["businessRegistryNumber"] = "RC-445566"
		s.Empty(Validate(s.tourism, 2, snap))
	})
}

func (s *ValidatorSuite) TestDocumentStep() {
	doc := func(docType string) models.Document {
		return models.Document{DocumentType: docType, OriginalName: docType + ".pdf", Mimetype: "application/pdf"}
	}

	s.Run("identity documents fan out per associate", func() {
		snap := Snapshot{
			FormData:  map[string]any{"associates": []any{validAssociate(true), validAssociate(false)}},
			Documents: []models.Document{doc(DocIdentity)},
		}
		reasons := Validate(s.company, 3, snap)
		s.Contains(reasons, "document identity_document: 1 of 2 required uploads present")

		snap.Documents = append(snap.Documents, doc(DocIdentity))
		s.Empty(Validate(s.company, 3, snap))
	})

	s.Run("tourism full document set gates the questionnaire", func() {
		snap := Snapshot{Documents: []models.Document{
			doc(DocPropertyDeed),
			doc(DocHabitationPermit),
			doc(DocInsuranceCertificate),
		}}
		reasons := Validate(s.tourism, 5, snap)
		s.Equal([]string{"document establishment_photo: 0 of 1 required uploads present"}, reasons)

		snap.Documents = append(snap.Documents, models.Document{DocumentType: DocEstablishmentPhoto, Mimetype: "image/jpeg"})
		s.Empty(Validate(s.tourism, 5, snap))
	})
}

func (s *ValidatorSuite) TestPaymentAndTerminalSteps() {
	s.Run("payment step fails until confirmed", func() {
		reasons := Validate(s.company, 4, Snapshot{})
		s.Equal([]string{"payment has not been confirmed"}, reasons)
		s.Empty(Validate(s.company, 4, Snapshot{PaymentConfirmed: true}))
	})

	s.Run("terminal step always passes", func() {
		s.Empty(Validate(s.company, 7, Snapshot{}))
		s.Empty(Validate(s.tourism, 6, Snapshot{}))
	})

	s.Run("out of range step is reported", func() {
		reasons := Validate(s.company, 12, Snapshot{})
		s.Len(reasons, 1)
	})
}
