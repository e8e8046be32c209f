package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aboerstra/fraud-adjudicator/pkg/models"
)

type fakeStore struct {
	reuseCounts     map[string]int
	dealerVolume    int
	dealerRate      float64
	dealerKnown     bool
	recorded        []string
	reuseErr        error
	dealerVolumeErr error
	dealerRateErr   error
}

func (f *fakeStore) ReuseCount(_ context.Context, _, kind, hash string, _ time.Time) (int, error) {
	if f.reuseErr != nil {
		return 0, f.reuseErr
	}
	return f.reuseCounts[kind+":"+hash], nil
}

func (f *fakeStore) DealerVolume24h(_ context.Context, _ string, _ time.Time) (int, error) {
	if f.dealerVolumeErr != nil {
		return 0, f.dealerVolumeErr
	}
	return f.dealerVolume, nil
}

func (f *fakeStore) DealerFraudRate(_ context.Context, _ string, _ time.Time) (float64, bool, error) {
	if f.dealerRateErr != nil {
		return 0, false, f.dealerRateErr
	}
	return f.dealerRate, f.dealerKnown, nil
}

func (f *fakeStore) RecordIdentifierSeen(_ context.Context, requestID, kind, hash string, _ time.Time) error {
	f.recorded = append(f.recorded, kind+":"+hash)
	return nil
}

func validPayload() models.ApplicationPayload {
	return models.ApplicationPayload{
		Personal: models.PersonalBlock{
			FirstName:   "Jane",
			LastName:    "Doe",
			DateOfBirth: "1990-06-15",
			SIN:         "123456782",
			Province:    "ON",
		},
		Contact: models.ContactBlock{
			Email:       "jane.doe@gmail.com",
			Phone:       "4165551234",
			AddressLine: "1 Main St",
			City:        "Toronto",
			PostalCode:  "M5V 2T6",
			IPAddress:   "1.2.3.4",
		},
		Financial: models.FinancialBlock{
			AnnualIncome:     80000,
			EmploymentMonths: 36,
			EmploymentType:   "full_time",
			CreditScore:      720,
		},
		Loan: models.LoanBlock{
			Amount:      25000,
			TermMonths:  60,
			RateAPR:     0.06,
			DownPayment: 5000,
		},
		Vehicle: models.VehicleBlock{
			Year:          2022,
			Make:          "Honda",
			Model:         "Civic",
			VIN:           "1HGCM82633A004352",
			PurchaseValue: 30000,
			Mileage:       15000,
		},
		Dealer: models.DealerBlock{ID: "dealer-1", Name: "Acme Motors"},
	}
}

func TestExtract_Order(t *testing.T) {
	store := &fakeStore{dealerVolume: 3, dealerRate: 0.1, dealerKnown: true}
	e := NewExtractor(store)
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	v, err := e.Extract(context.Background(), "req-1", validPayload(), now)
	require.NoError(t, err)

	assert.InDelta(t, 36.0, v.Values[0], 0.01) // age
	assert.Equal(t, 1.0, v.Values[1])          // sin_valid
	assert.Equal(t, 0.0, v.Values[2])          // gmail => free webmail bucket
	assert.Equal(t, 0.0, v.Values[3])          // phone_reuse_count
	assert.Equal(t, 0.0, v.Values[4])          // email_reuse_count
	assert.Equal(t, 0.0, v.Values[5])          // vin_reuse_flag
	assert.Equal(t, 3.0, v.Values[6])          // dealer_volume_24h
	assert.InDelta(t, 0.1, v.Values[7], 0.001) // dealer_fraud_percentile
	assert.Equal(t, "builtin-v1", v.FeatureSetVersion)
}

func TestExtract_DealerFraudRateFallsBackWhenUnknown(t *testing.T) {
	store := &fakeStore{dealerKnown: false}
	e := NewExtractor(store)

	v, err := e.Extract(context.Background(), "req-1", validPayload(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, defaultDealerFraudRate, v.Values[7])
}

func TestExtract_ReuseCountsPropagate(t *testing.T) {
	p := validPayload()
	phoneHash := identifierHash(p.Contact.Phone)
	store := &fakeStore{
		reuseCounts: map[string]int{
			"phone": 2,
		},
	}
	// key the fake store the same way Extract looks it up
	store.reuseCounts["phone:"+phoneHash] = 2

	e := NewExtractor(store)
	v, err := e.Extract(context.Background(), "req-1", p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.Values[3])
}

func TestExtract_RecordsIdentifiers(t *testing.T) {
	store := &fakeStore{}
	e := NewExtractor(store)
	_, err := e.Extract(context.Background(), "req-1", validPayload(), time.Now())
	require.NoError(t, err)
	assert.Len(t, store.recorded, 3) // phone, email, vin
}

func TestExtract_RatiosClamped(t *testing.T) {
	p := validPayload()
	p.Loan.Amount = 1_000_000
	p.Vehicle.PurchaseValue = 1
	p.Loan.DownPayment = 1_000_000

	store := &fakeStore{}
	e := NewExtractor(store)
	v, err := e.Extract(context.Background(), "req-1", p, time.Now())
	require.NoError(t, err)

	assert.Equal(t, maxLoanToValueRatio, v.Values[10])
	assert.Equal(t, maxDPIncomeRatio, v.Values[12])
}

func TestExtract_MissingDOBUsesDefaultAge(t *testing.T) {
	p := validPayload()
	p.Personal.DateOfBirth = "not-a-date"

	store := &fakeStore{}
	e := NewExtractor(store)
	v, err := e.Extract(context.Background(), "req-1", p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, defaultAge, v.Values[0])
}

func TestExtract_InvalidSINReflectedInFeature(t *testing.T) {
	p := validPayload()
	p.Personal.SIN = "000000000"

	store := &fakeStore{}
	e := NewExtractor(store)
	v, err := e.Extract(context.Background(), "req-1", p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Values[1])
}

func TestExtract_HighValueLowIncomeFlag(t *testing.T) {
	p := validPayload()
	p.Financial.AnnualIncome = 20000
	p.Vehicle.PurchaseValue = 50000

	store := &fakeStore{}
	e := NewExtractor(store)
	v, err := e.Extract(context.Background(), "req-1", p, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Values[14])
}

func TestExtract_PropagatesReuseCountError(t *testing.T) {
	store := &fakeStore{reuseErr: assert.AnError}
	e := NewExtractor(store)
	_, err := e.Extract(context.Background(), "req-1", validPayload(), time.Now())
	assert.ErrorIs(t, err, assert.AnError)
}
