package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariffs_DefaultTable(t *testing.T) {
	tariffs, err := NewTariffs(DefaultTariffs())
	require.NoError(t, err)

	tests := []struct {
		service ServiceType
		method  PaymentMethod
		base    int64
		amount  int64
	}{
		{ServiceMedicineDelivery, BankCard, 600, 600},
		{ServiceMedicineDelivery, LoyaltyCard, 600, 480},
		{ServiceMedicalTransport, BankCard, 1500, 1500},
		{ServiceMedicalTransport, LoyaltyCard, 1500, 1200},
		{ServiceAmbulance, BankCard, 4000, 4000},
		{ServiceAmbulance, LoyaltyCard, 3500, 2800},
	}
	for _, tt := range tests {
		t.Run(string(tt.service)+"/"+string(tt.method), func(t *testing.T) {
			base, err := tariffs.Base(tt.service, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.base, base)

			amount, err := tariffs.Amount(tt.service, tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, amount)
		})
	}
}

func TestTariffs_Unknown(t *testing.T) {
	tariffs, err := NewTariffs([]Tariff{{Service: "x-ray", Prices: map[PaymentMethod]int64{BankCard: 100}}})
	require.NoError(t, err)

	_, err = tariffs.Base("massage", BankCard)
	assert.ErrorIs(t, err, ErrUnknownTariff)
	_, err = tariffs.Amount("x-ray", LoyaltyCard)
	assert.ErrorIs(t, err, ErrUnknownTariff)
}

func TestNewTariffs_Rejects(t *testing.T) {
	_, err := NewTariffs([]Tariff{{Service: ""}})
	assert.Error(t, err)

	_, err = NewTariffs([]Tariff{{Service: "a"}, {Service: "a"}})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewTariffs([]Tariff{{Service: "a", Prices: map[PaymentMethod]int64{"cash": 10}}})
	assert.ErrorContains(t, err, "unknown payment method")

	_, err = NewTariffs([]Tariff{{Service: "a", Prices: map[PaymentMethod]int64{BankCard: -1}}})
	assert.ErrorContains(t, err, "negative")
}

func TestTariffs_ListAndLookup(t *testing.T) {
	tariffs, err := NewTariffs(DefaultTariffs())
	require.NoError(t, err)

	list := tariffs.List()
	require.Len(t, list, 3)
	assert.Equal(t, ServiceAmbulance, list[0].Service)
	assert.Equal(t, ServiceMedicalTransport, list[1].Service)
	assert.Equal(t, ServiceMedicineDelivery, list[2].Service)

	tariff, ok := tariffs.Lookup(ServiceMedicalTransport)
	require.True(t, ok)
	assert.Equal(t, "transport", tariff.Kind)
	_, ok = tariffs.Lookup("unknown")
	assert.False(t, ok)
}
