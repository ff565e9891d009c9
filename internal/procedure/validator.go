package procedure

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"formalitys/internal/dossier/models"
)

// Snapshot is the read-only view of a dossier the validator works on. It is a
// plain value so validation stays pure and free of store access.
type Snapshot struct {
	FormData         map[string]any
	Documents        []models.Document
	PaymentConfirmed bool
}

// SnapshotOf builds a validation snapshot from a dossier.
func SnapshotOf(d *models.Dossier) Snapshot {
	return Snapshot{
		FormData:         d.FormData,
		Documents:        d.Documents,
		PaymentConfirmed: d.PaymentConfirmed(),
	}
}

var (
	phonePattern = regexp.MustCompile(`^[0-9+()\s.\-]{6,20}$`)
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Validate interprets the rule table for one step against a snapshot. It
// accumulates every violation instead of short-circuiting so the caller can
// present a complete correction list. An empty result means the step passes.
func Validate(def Definition, stepNumber int, snap Snapshot) []string {
	step, ok := def.Step(stepNumber)
	if !ok {
		return []string{fmt.Sprintf("step %d does not exist for procedure %s", stepNumber, def.Type)}
	}

	var reasons []string
	reasons = append(reasons, checkFields(step.Fields, snap.FormData)...)

	switch step.Kind {
	case StepParticipants:
		reasons = append(reasons, checkParticipants(*step.Participants, snap.FormData)...)
	case StepDocuments:
		reasons = append(reasons, checkDocuments(def, step.Documents, snap)...)
	case StepPayment:
		if !snap.PaymentConfirmed {
			reasons = append(reasons, "payment has not been confirmed")
		}
	case StepTerminal:
		// Always passes; the terminal step only collects a confirmation.
	}
	return reasons
}

func checkFields(fields []FieldRule, data map[string]any) []string {
	var reasons []string
	for _, field := range fields {
		raw := data[field.Name]
		value := strings.TrimSpace(stringValue(raw))
		if value == "" {
			if field.Required {
				reasons = append(reasons, field.Name+" is required")
			}
			continue
		}
		switch field.Kind {
		case FieldPhone:
			if !phonePattern.MatchString(value) {
				reasons = append(reasons, field.Name+" is not a valid phone number")
			}
		case FieldEmail:
			if !emailPattern.MatchString(value) {
				reasons = append(reasons, field.Name+" is not a valid email address")
			}
		case FieldNumber:
			if !isNumber(raw) {
				reasons = append(reasons, field.Name+" must be a number")
			}
		}
	}
	return reasons
}

func checkParticipants(rule ParticipantRule, data map[string]any) []string {
	participants := Participants(data, rule.Field)
	if len(participants) == 0 {
		return []string{"at least one " + rule.Label + " is required"}
	}

	var reasons []string
	hasManager := false
	for i, p := range participants {
		prefix := fmt.Sprintf("%s %d: ", rule.Label, i+1)

		for _, required := range []string{"name", "idNumber", "address"} {
			if strings.TrimSpace(stringValue(p[required])) == "" {
				reasons = append(reasons, prefix+required+" is required")
			}
		}
		phone := strings.TrimSpace(stringValue(p["phone"]))
		if phone == "" || !phonePattern.MatchString(phone) {
			reasons = append(reasons, prefix+"phone number is missing or invalid")
		}
		email := strings.TrimSpace(stringValue(p["email"]))
		if email == "" || !emailPattern.MatchString(email) {
			reasons = append(reasons, prefix+"email address is missing or invalid")
		}

		if boolValue(p["isManager"]) {
			hasManager = true
		}
		if rule.RequireRole {
			role := strings.TrimSpace(stringValue(p["role"]))
			if role == "" {
				reasons = append(reasons, prefix+"role is required")
				continue
			}
			for _, registryRole := range rule.RegistryNumberRoles {
				if role == registryRole && strings.TrimSpace(stringValue(p["businessRegistryNumber"])) == "" {
					reasons = append(reasons, prefix+"businessRegistryNumber is required for role "+role)
				}
			}
		}
	}
	if rule.RequireManager && !hasManager {
		reasons = append(reasons, "at least one "+rule.Label+" must be flagged as manager")
	}
	return reasons
}

func checkDocuments(def Definition, rules []DocumentRule, snap Snapshot) []string {
	var reasons []string
	for _, rule := range rules {
		need := rule.MinCount
		if rule.PerParticipant {
			need = len(Participants(snap.FormData, def.ParticipantField()))
			if need < 1 {
				need = 1
			}
		}
		have := 0
		for _, doc := range snap.Documents {
			if doc.DocumentType == rule.Type {
				have++
			}
		}
		if have < need {
			reasons = append(reasons, fmt.Sprintf("document %s: %d of %d required uploads present", rule.Type, have, need))
		}
	}
	return reasons
}

// Participants extracts the participant list stored under the given form data
// field. JSON decoding yields []any of map[string]any; anything else counts
// as no participants.
func Participants(data map[string]any, field string) []map[string]any {
	raw, ok := data[field]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

func boolValue(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value == "true"
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch value := v.(type) {
	case float64, int, int64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return err == nil
	default:
		return false
	}
}
