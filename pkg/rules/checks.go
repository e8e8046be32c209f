package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

// Rule codes. These are the fixed set of checks the evaluator knows how
// to run; the rule pack's RuleDef entries reference them by Code.
const (
	CodeInvalidSIN                 = "invalid_sin"
	CodeMissingMandatoryField      = "missing_mandatory_field"
	CodeEmailDenyList              = "email_deny_list"
	CodePhoneDenyList              = "phone_deny_list"
	CodeVINDenyList                = "vin_deny_list"
	CodeNewEmploymentShortTenure   = "new_employment_short_tenure"
	CodeLowIncomeHighLoan          = "low_income_high_loan"
	CodeHighMileageForAge          = "high_mileage_for_age"
	CodeMinorAge                   = "minor_age"
	CodeSelfEmployedNoVerification = "self_employed_no_verification"
	CodeAddressMismatchProvince    = "address_mismatch_province"
)

// check is a predicate over an application: true means the rule fires.
type check func(p models.ApplicationPayload, deny DenyList, now time.Time) bool

// registry maps a rule code to its predicate. One generic evaluator
// (Evaluate, in evaluator.go) drives every entry through this single
// table instead of a type hierarchy per rule.
var registry = map[string]check{
	CodeInvalidSIN:                 isInvalidSIN,
	CodeMissingMandatoryField:      isMissingMandatoryField,
	CodeEmailDenyList:              isEmailDenyListed,
	CodePhoneDenyList:              isPhoneDenyListed,
	CodeVINDenyList:                isVINDenyListed,
	CodeNewEmploymentShortTenure:   isNewEmploymentShortTenure,
	CodeLowIncomeHighLoan:          isLowIncomeHighLoan,
	CodeHighMileageForAge:          isHighMileageForAge,
	CodeMinorAge:                   isMinorAge,
	CodeSelfEmployedNoVerification: isSelfEmployedNoVerification,
	CodeAddressMismatchProvince:    isAddressMismatchProvince,
}

// isInvalidSIN checks length, rejects the reserved all-repeated-digit
// range (e.g. "000000000", never issued), and verifies the Luhn checksum
// Canadian SINs use.
func isInvalidSIN(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	return !IsValidSIN(p.Personal.SIN)
}

// IsValidSIN reports whether s passes the same length/repeated-digit/
// Luhn checks the invalid_sin rule uses. Exported for the Features
// stage's sin_valid feature, which needs the identical validity notion.
func IsValidSIN(sin string) bool {
	if len(sin) != 9 {
		return false
	}
	if isRepeatedDigit(sin) {
		return false
	}
	return luhnValid(sin)
}

func isRepeatedDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

func isMissingMandatoryField(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	return p.Personal.FirstName == "" ||
		p.Personal.LastName == "" ||
		p.Contact.Email == "" ||
		p.Vehicle.VIN == "" ||
		p.Dealer.ID == ""
}

func hashWithSalt(salt, value string) string {
	h := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(h[:])
}

func isEmailDenyListed(p models.ApplicationPayload, deny DenyList, _ time.Time) bool {
	if p.Contact.Email == "" {
		return false
	}
	h := hashWithSalt(deny.Salt, strings.ToLower(p.Contact.Email))
	return contains(deny.Emails, h)
}

func isPhoneDenyListed(p models.ApplicationPayload, deny DenyList, _ time.Time) bool {
	if p.Contact.Phone == "" {
		return false
	}
	h := hashWithSalt(deny.Salt, digitsOnly(p.Contact.Phone))
	return contains(deny.Phones, h)
}

func isVINDenyListed(p models.ApplicationPayload, deny DenyList, _ time.Time) bool {
	if p.Vehicle.VIN == "" {
		return false
	}
	h := hashWithSalt(deny.Salt, strings.ToUpper(p.Vehicle.VIN))
	return contains(deny.VINs, h)
}

func isNewEmploymentShortTenure(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	return p.Financial.EmploymentMonths > 0 && p.Financial.EmploymentMonths < 3
}

func isLowIncomeHighLoan(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	if p.Financial.AnnualIncome <= 0 {
		return false
	}
	return p.Loan.Amount > p.Financial.AnnualIncome*0.75
}

func isHighMileageForAge(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	age := time.Now().Year() - p.Vehicle.Year
	if age <= 0 {
		return false
	}
	return float64(p.Vehicle.Mileage)/float64(age) > 30000
}

func isMinorAge(p models.ApplicationPayload, _ DenyList, now time.Time) bool {
	dob, err := time.Parse("2006-01-02", p.Personal.DateOfBirth)
	if err != nil {
		return false
	}
	age := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		age--
	}
	return age < 18
}

func isSelfEmployedNoVerification(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	return strings.EqualFold(p.Financial.EmploymentType, "self_employed") && p.Financial.EmploymentMonths < 12
}

func isAddressMismatchProvince(p models.ApplicationPayload, _ DenyList, _ time.Time) bool {
	return p.Contact.IPAddress != "" && p.Personal.Province == ""
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
