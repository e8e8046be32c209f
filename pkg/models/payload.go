// Package models holds the domain types shared across the pipeline stages:
// the application payload, per-stage output records, and the final
// decision. Types here are plain data — stage logic lives in the packages
// that produce each record.
package models

// ApplicationPayload is the body of a Submit request, matching the blocks
// named in spec §4.1: personal, contact, financial, loan, vehicle, dealer.
type ApplicationPayload struct {
	Personal  PersonalBlock  `json:"personal"`
	Contact   ContactBlock   `json:"contact"`
	Financial FinancialBlock `json:"financial"`
	Loan      LoanBlock      `json:"loan"`
	Vehicle   VehicleBlock   `json:"vehicle"`
	Dealer    DealerBlock    `json:"dealer"`
}

// PersonalBlock carries identity fields used for hard-fail rules (SIN
// validity) and feature extraction (age).
type PersonalBlock struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
	SIN         string `json:"sin"`
	Province    string `json:"province"` // two-letter code, e.g. "ON"
}

// ContactBlock carries contact fields. Every field here is PII and must
// never be rendered into an LLM prompt (spec §4.6).
type ContactBlock struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	PostalCode  string `json:"postal_code"`
	IPAddress   string `json:"ip_address"` // client IP at submission time, for province/IP mismatch
}

// FinancialBlock carries credit/income fields.
type FinancialBlock struct {
	AnnualIncome     float64 `json:"annual_income"`
	EmploymentMonths int     `json:"employment_months"`
	EmploymentType   string  `json:"employment_type"` // e.g. "full_time", "self_employed"
	CreditScore      int     `json:"credit_score"`    // 300-900
}

// LoanBlock carries the requested financing terms.
type LoanBlock struct {
	Amount      float64 `json:"amount"`
	TermMonths  int     `json:"term_months"`
	RateAPR     float64 `json:"rate_apr"`
	DownPayment float64 `json:"down_payment"`
}

// VehicleBlock carries the vehicle being financed.
type VehicleBlock struct {
	Year          int     `json:"year"`
	Make          string  `json:"make"`
	Model         string  `json:"model"`
	VIN           string  `json:"vin"`
	PurchaseValue float64 `json:"purchase_value"`
	Mileage       int     `json:"mileage"`
}

// DealerBlock identifies the selling dealer, used for volume/fraud-rate
// feature lookups.
type DealerBlock struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
