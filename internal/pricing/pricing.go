// Package pricing computes the loyalty-discounted price of a procedure. All
// amounts are integer minor units (centimes) so no floating point ever touches
// money.
package pricing

import (
	"formalitys/internal/dossier/models"
	dErrors "formalitys/pkg/domain-errors"
)

// Currency is the only currency the platform charges in.
const Currency = "MAD"

// Base fees and add-ons in centimes.
const (
	CompanyBaseFee   int64 = 330000 // 3300 MAD
	TourismBaseFee   int64 = 160000 // 1600 MAD
	DomiciliationFee int64 = 90000  // 900 MAD registered-address add-on
)

// Quote is the result of a price computation. The discount applies to the
// base fee only; add-ons are charged at full price on top.
type Quote struct {
	OriginalPrice      int64  `json:"original_price"`
	DiscountPercentage int    `json:"discount_percentage"`
	DiscountAmount     int64  `json:"discount_amount"`
	AddOns             int64  `json:"add_ons"`
	FinalPrice         int64  `json:"final_price"`
	Currency           string `json:"currency"`
}

// BaseFee returns the procedure's base fee.
func BaseFee(procedureType models.ProcedureType) (int64, error) {
	switch procedureType {
	case models.ProcedureCompany:
		return CompanyBaseFee, nil
	case models.ProcedureTourism:
		return TourismBaseFee, nil
	default:
		return 0, dErrors.New(dErrors.CodeBadRequest, "unknown procedure type: "+string(procedureType))
	}
}

// TierPercentage maps the owner's count of prior COMPLETED dossiers of the
// same procedure type to a discount percentage. Monotonic, capped at 25%.
func TierPercentage(completedCount int) int {
	switch {
	case completedCount <= 0:
		return 0
	case completedCount == 1:
		return 15
	case completedCount == 2:
		return 20
	default:
		return 25
	}
}

// Compute derives a quote from the completed-dossier count. Pure and
// side-effect-free; callers must recompute at payment-intent creation time
// rather than reuse an earlier quote, since the count can change in between.
func Compute(completedCount int, basePrice int64, addOns int64) Quote {
	percentage := TierPercentage(completedCount)
	// Round half up to the minor unit.
	discount := (basePrice*int64(percentage) + 50) / 100
	return Quote{
		OriginalPrice:      basePrice,
		DiscountPercentage: percentage,
		DiscountAmount:     discount,
		AddOns:             addOns,
		FinalPrice:         basePrice - discount + addOns,
		Currency:           Currency,
	}
}

// AddOnsFor derives the add-on total from the dossier's selected options.
func AddOnsFor(procedureType models.ProcedureType, formData map[string]any) int64 {
	if procedureType != models.ProcedureCompany {
		return 0
	}
	switch value := formData["domiciliation"].(type) {
	case bool:
		if value {
			return DomiciliationFee
		}
	case string:
		if value == "true" {
			return DomiciliationFee
		}
	}
	return 0
}
