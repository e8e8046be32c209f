package ingress

import (
	"fmt"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// FieldError names one invalid or missing field on a submitted payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validatePayload checks field presence, types, and ranges (spec §4.1
// step 5). Field errors are accumulated rather than stopping at the
// first one, so a submitter sees every problem in one round trip.
func validatePayload(p models.ApplicationPayload) []FieldError {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if p.Personal.FirstName == "" {
		add("personal.first_name", "is required")
	}
	if p.Personal.LastName == "" {
		add("personal.last_name", "is required")
	}
	if _, err := time.Parse("2006-01-02", p.Personal.DateOfBirth); err != nil {
		add("personal.date_of_birth", "must be YYYY-MM-DD")
	}
	if len(p.Personal.SIN) != 9 {
		add("personal.sin", "must be 9 digits")
	}
	if len(p.Personal.Province) != 2 {
		add("personal.province", "must be a two-letter province code")
	}

	if p.Contact.Email == "" {
		add("contact.email", "is required")
	}
	if p.Contact.Phone == "" {
		add("contact.phone", "is required")
	}
	if p.Contact.PostalCode == "" {
		add("contact.postal_code", "is required")
	}

	if p.Financial.AnnualIncome < 0 {
		add("financial.annual_income", "must be non-negative")
	}
	if p.Financial.CreditScore != 0 && (p.Financial.CreditScore < 300 || p.Financial.CreditScore > 900) {
		add("financial.credit_score", "must be in [300,900]")
	}
	if p.Financial.EmploymentMonths < 0 {
		add("financial.employment_months", "must be non-negative")
	}

	if p.Loan.Amount <= 0 {
		add("loan.amount", "must be positive")
	}
	if p.Loan.TermMonths <= 0 {
		add("loan.term_months", "must be positive")
	}
	if p.Loan.DownPayment < 0 {
		add("loan.down_payment", "must be non-negative")
	}

	if p.Vehicle.VIN == "" {
		add("vehicle.vin", "is required")
	}
	if p.Vehicle.PurchaseValue <= 0 {
		add("vehicle.purchase_value", "must be positive")
	}
	if p.Vehicle.Mileage < 0 {
		add("vehicle.mileage", "must be non-negative")
	}

	if p.Dealer.ID == "" {
		add("dealer.id", "is required")
	}

	return errs
}
