package adjudicator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// PromptTemplateVersion is stamped onto every LLMAnalysis this adjudicator
// produces, so a prompt-wording change is traceable in stored records.
const PromptTemplateVersion = "adjudicator-prompt-v1"

// applicationProjection is the compressed, PII-free view of an
// application rendered into the user prompt (spec §4.6 "Context rendered
// ... consists of ... a compressed, PII-free projection of the
// application: age band, province, income bracket, employment
// months/type, credit score, loan amount/term/rate, vehicle year/make/
// model, value, mileage. No SIN, email, phone, street, VIN, or postal
// code is rendered.").
type applicationProjection struct {
	AgeBand          string  `json:"age_band"`
	Province         string  `json:"province"`
	IncomeBracket    string  `json:"income_bracket"`
	EmploymentMonths int     `json:"employment_months"`
	EmploymentType   string  `json:"employment_type"`
	CreditScore      int     `json:"credit_score"`
	LoanAmount       float64 `json:"loan_amount"`
	LoanTermMonths   int     `json:"loan_term_months"`
	LoanRateAPR      float64 `json:"loan_rate_apr"`
	VehicleYear      int     `json:"vehicle_year"`
	VehicleMake      string  `json:"vehicle_make"`
	VehicleModel     string  `json:"vehicle_model"`
	VehicleValue     float64 `json:"vehicle_value"`
	VehicleMileage   int     `json:"vehicle_mileage"`
}

// projectApplication builds the PII-free projection. It must never read
// p.Personal.SIN, p.Personal.DateOfBirth (only its derived band),
// p.Contact.Email, p.Contact.Phone, p.Contact.AddressLine,
// p.Contact.PostalCode, or p.Vehicle.VIN.
func projectApplication(p models.ApplicationPayload, now time.Time) applicationProjection {
	return applicationProjection{
		AgeBand:          ageBand(p.Personal.DateOfBirth, now),
		Province:         p.Personal.Province,
		IncomeBracket:    incomeBracket(p.Financial.AnnualIncome),
		EmploymentMonths: p.Financial.EmploymentMonths,
		EmploymentType:   p.Financial.EmploymentType,
		CreditScore:      p.Financial.CreditScore,
		LoanAmount:       p.Loan.Amount,
		LoanTermMonths:   p.Loan.TermMonths,
		LoanRateAPR:      p.Loan.RateAPR,
		VehicleYear:      p.Vehicle.Year,
		VehicleMake:      p.Vehicle.Make,
		VehicleModel:     p.Vehicle.Model,
		VehicleValue:     p.Vehicle.PurchaseValue,
		VehicleMileage:   p.Vehicle.Mileage,
	}
}

func ageBand(dob string, now time.Time) string {
	t, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return "unknown"
	}
	years := now.Year() - t.Year()
	if now.YearDay() < t.YearDay() {
		years--
	}
	switch {
	case years < 25:
		return "18-24"
	case years < 35:
		return "25-34"
	case years < 45:
		return "35-44"
	case years < 55:
		return "45-54"
	case years < 65:
		return "55-64"
	default:
		return "65+"
	}
}

func incomeBracket(annual float64) string {
	switch {
	case annual < 30000:
		return "<30k"
	case annual < 50000:
		return "30k-50k"
	case annual < 75000:
		return "50k-75k"
	case annual < 100000:
		return "75k-100k"
	case annual < 150000:
		return "100k-150k"
	default:
		return "150k+"
	}
}

// systemPrompt instructs the model to emit JSON only, matching the
// strict response schema (spec §4.6 "instructs the model to emit JSON
// only, per a strict schema").
const systemPrompt = `You are a fraud-risk adjudicator for Canadian auto-loan applications.
Respond with a single JSON object matching the supplied schema exactly.
Do not include any prose, markdown, or commentary outside the JSON object.
recommendation must be one of: approve, conditional, decline, review.`

// BuildUserPrompt renders the Rules output, ML output, and a PII-free
// application projection into the user prompt (spec §4.6 "Prompt
// construction").
func BuildUserPrompt(p models.ApplicationPayload, rulesOut models.RulesOutput, mlOut models.MLOutput, now time.Time) (string, error) {
	projection := projectApplication(p, now)

	projectionJSON, err := json.MarshalIndent(projection, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal application projection: %w", err)
	}
	rulesJSON, err := json.MarshalIndent(rulesOut, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rules output: %w", err)
	}
	mlJSON, err := json.MarshalIndent(mlOut, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal ml output: %w", err)
	}

	var b strings.Builder
	b.WriteString("Application (PII-free projection):\n")
	b.Write(projectionJSON)
	b.WriteString("\n\nRules stage output:\n")
	b.Write(rulesJSON)
	b.WriteString("\n\nML stage output:\n")
	b.Write(mlJSON)
	b.WriteString("\n\nAssess fraud risk and credit policy fit. Respond with the JSON object only.")
	return b.String(), nil
}
