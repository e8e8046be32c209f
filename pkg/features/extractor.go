// Package features computes the 15 named numeric features the ML and
// LLM stages consume, in the declared order (spec §4.5).
package features

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
	"github.com/aboerstra/fraud-adjudicator/pkg/rules"
)

// Default (documented median/neutral) values used when an input needed
// to compute a feature is missing (spec §4.5 "missing inputs map to
// per-feature defaults").
const (
	defaultAge              = 35.0
	defaultDealerFraudRate  = 0.02 // neutral prior for a dealer with no history yet
	defaultMileagePlausible = 1.0  // assume plausible absent a way to check
)

// Clamp ceilings for the ratio features (spec §4.5 "ratios are clamped
// to declared maxima").
const (
	maxLoanToValueRatio  = 2.0
	maxPurchaseLoanRatio = 2.0
	maxDPIncomeRatio     = 1.0
)

// ReuseStore is the subset of *store.Client the extractor needs for
// reuse-count and dealer-history features.
type ReuseStore interface {
	ReuseCount(ctx context.Context, requestID, kind, hash string, now time.Time) (int, error)
	DealerVolume24h(ctx context.Context, dealerID string, now time.Time) (int, error)
	DealerFraudRate(ctx context.Context, dealerID string, now time.Time) (rate float64, known bool, err error)
	RecordIdentifierSeen(ctx context.Context, requestID, kind, hash string, now time.Time) error
}

// Extractor computes the Features stage output for one request.
type Extractor struct {
	store ReuseStore
}

// NewExtractor constructs an Extractor. store must not be nil.
func NewExtractor(store ReuseStore) *Extractor {
	if store == nil {
		panic("features.NewExtractor: store must not be nil")
	}
	return &Extractor{store: store}
}

// Extract computes all 15 features for the given request in declared
// order and records the request's identifiers for future reuse lookups.
func (e *Extractor) Extract(ctx context.Context, requestID string, p models.ApplicationPayload, now time.Time) (models.FeatureVector, error) {
	var v models.FeatureVector

	v.Values[0] = age(p, now)
	v.Values[1] = boolToFloat(rules.IsValidSIN(p.Personal.SIN))
	v.Values[2] = emailDomainCategory(p.Contact.Email)

	phoneHash := identifierHash(p.Contact.Phone)
	phoneReuse, err := e.store.ReuseCount(ctx, requestID, "phone", phoneHash, now)
	if err != nil {
		return v, err
	}
	v.Values[3] = float64(phoneReuse)

	emailHash := identifierHash(strings.ToLower(p.Contact.Email))
	emailReuse, err := e.store.ReuseCount(ctx, requestID, "email", emailHash, now)
	if err != nil {
		return v, err
	}
	v.Values[4] = float64(emailReuse)

	vinHash := identifierHash(strings.ToUpper(p.Vehicle.VIN))
	vinReuse, err := e.store.ReuseCount(ctx, requestID, "vin", vinHash, now)
	if err != nil {
		return v, err
	}
	v.Values[5] = boolToFloat(vinReuse > 0)

	dealerVolume, err := e.store.DealerVolume24h(ctx, p.Dealer.ID, now)
	if err != nil {
		return v, err
	}
	v.Values[6] = float64(dealerVolume)

	fraudRate, known, err := e.store.DealerFraudRate(ctx, p.Dealer.ID, now)
	if err != nil {
		return v, err
	}
	if !known {
		fraudRate = defaultDealerFraudRate
	}
	v.Values[7] = fraudRate

	v.Values[8] = boolToFloat(provinceIPMismatch(p))
	v.Values[9] = boolToFloat(addressPostalMatch(p))
	v.Values[10] = clamp(loanToValueRatio(p), maxLoanToValueRatio)
	v.Values[11] = clamp(purchaseLoanRatio(p), maxPurchaseLoanRatio)
	v.Values[12] = clamp(dpIncomeRatio(p), maxDPIncomeRatio)
	v.Values[13] = mileagePlausibility(p)
	v.Values[14] = boolToFloat(highValueLowIncome(p))

	v.FeatureSetVersion = "builtin-v1"

	if err := e.recordIdentifiers(ctx, requestID, p, now); err != nil {
		return v, err
	}

	return v, nil
}

func (e *Extractor) recordIdentifiers(ctx context.Context, requestID string, p models.ApplicationPayload, now time.Time) error {
	if p.Contact.Phone != "" {
		if err := e.store.RecordIdentifierSeen(ctx, requestID, "phone", identifierHash(p.Contact.Phone), now); err != nil {
			return err
		}
	}
	if p.Contact.Email != "" {
		if err := e.store.RecordIdentifierSeen(ctx, requestID, "email", identifierHash(strings.ToLower(p.Contact.Email)), now); err != nil {
			return err
		}
	}
	if p.Vehicle.VIN != "" {
		if err := e.store.RecordIdentifierSeen(ctx, requestID, "vin", identifierHash(strings.ToUpper(p.Vehicle.VIN)), now); err != nil {
			return err
		}
	}
	return nil
}

func identifierHash(v string) string {
	h := sha256.Sum256([]byte(v))
	return hex.EncodeToString(h[:])
}

func age(p models.ApplicationPayload, now time.Time) float64 {
	dob, err := time.Parse("2006-01-02", p.Personal.DateOfBirth)
	if err != nil {
		return defaultAge
	}
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	if years < 0 {
		return defaultAge
	}
	return float64(years)
}

// emailDomainCategory buckets the email domain into a small numeric
// scale: 0 = free webmail (or no domain), 2 = any other domain. No domain
// is placed in an intermediate bucket 1.
func emailDomainCategory(email string) float64 {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return 0
	}
	domain := strings.ToLower(email[at+1:])
	switch domain {
	case "gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "icloud.com":
		return 0
	case "":
		return 0
	default:
		return 2
	}
}

// provinceIPMismatch flags a stated province that disagrees with the
// client IP's apparent region. No IP geolocation source is wired, so
// this returns the documented neutral default (no mismatch) until one
// is; the feature name and slot stay reserved for when it is.
func provinceIPMismatch(p models.ApplicationPayload) bool {
	_ = p.Contact.IPAddress
	_ = p.Personal.Province
	return false
}

func addressPostalMatch(p models.ApplicationPayload) bool {
	return p.Contact.PostalCode != "" && p.Contact.AddressLine != ""
}

func loanToValueRatio(p models.ApplicationPayload) float64 {
	if p.Vehicle.PurchaseValue <= 0 {
		return 0
	}
	return p.Loan.Amount / p.Vehicle.PurchaseValue
}

func purchaseLoanRatio(p models.ApplicationPayload) float64 {
	if p.Loan.Amount <= 0 {
		return 0
	}
	return p.Vehicle.PurchaseValue / p.Loan.Amount
}

func dpIncomeRatio(p models.ApplicationPayload) float64 {
	if p.Financial.AnnualIncome <= 0 {
		return 0
	}
	return p.Loan.DownPayment / p.Financial.AnnualIncome
}

// mileagePlausibility scores how plausible the odometer reading is for
// the vehicle's age; 1.0 is fully plausible, lower values flag rollback
// or excessive wear.
func mileagePlausibility(p models.ApplicationPayload) float64 {
	vehicleAge := time.Now().Year() - p.Vehicle.Year
	if vehicleAge <= 0 {
		if p.Vehicle.Mileage > 5000 {
			return 0.3
		}
		return defaultMileagePlausible
	}
	expected := float64(vehicleAge) * 20000
	if expected <= 0 {
		return defaultMileagePlausible
	}
	ratio := float64(p.Vehicle.Mileage) / expected
	switch {
	case ratio < 0.1 || ratio > 2.5:
		return 0.2
	case ratio < 0.3 || ratio > 1.8:
		return 0.6
	default:
		return defaultMileagePlausible
	}
}

func highValueLowIncome(p models.ApplicationPayload) bool {
	if p.Financial.AnnualIncome <= 0 {
		return p.Vehicle.PurchaseValue > 0
	}
	return p.Vehicle.PurchaseValue > p.Financial.AnnualIncome*0.6
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < 0 {
		return 0
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
