package pricing

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownTariff is returned when no price exists for a service and payment method.
var ErrUnknownTariff = errors.New("no tariff for service and payment method")

// ServiceType names a fixed-price booking that does not go through the cart.
type ServiceType string

const (
	// ServiceMedicineDelivery brings a prescription from a partner pharmacy.
	ServiceMedicineDelivery ServiceType = "medicine-delivery"
	// ServiceMedicalTransport drives a patient to a clinic appointment.
	ServiceMedicalTransport ServiceType = "medical-transport"
	// ServiceAmbulance dispatches an equipped ambulance.
	ServiceAmbulance ServiceType = "ambulance"
)

// Tariff is the fixed price list of one service.
type Tariff struct {
	Service ServiceType             `yaml:"service" json:"service"`
	Label   string                  `yaml:"label" json:"label"`
	Kind    string                  `yaml:"kind" json:"kind"`
	Prices  map[PaymentMethod]int64 `yaml:"prices" json:"prices"`
}

// Tariffs is the lookup table keyed by (service, payment method).
type Tariffs struct {
	byService map[ServiceType]Tariff
}

// DefaultTariffs returns the prices used when configuration does not override them.
func DefaultTariffs() []Tariff {
	return []Tariff{
		{
			Service: ServiceMedicineDelivery,
			Label:   "Medicine delivery",
			Kind:    "delivery",
			Prices:  map[PaymentMethod]int64{BankCard: 600, LoyaltyCard: 600},
		},
		{
			Service: ServiceMedicalTransport,
			Label:   "Medical transport",
			Kind:    "transport",
			Prices:  map[PaymentMethod]int64{BankCard: 1500, LoyaltyCard: 1500},
		},
		{
			Service: ServiceAmbulance,
			Label:   "Ambulance",
			Kind:    "transport",
			Prices:  map[PaymentMethod]int64{BankCard: 4000, LoyaltyCard: 3500},
		},
	}
}

// NewTariffs indexes the table and rejects duplicate services or negative prices.
func NewTariffs(list []Tariff) (*Tariffs, error) {
	t := &Tariffs{byService: make(map[ServiceType]Tariff, len(list))}
	for _, tariff := range list {
		if tariff.Service == "" {
			return nil, errors.New("tariff service is required")
		}
		if _, dup := t.byService[tariff.Service]; dup {
			return nil, fmt.Errorf("duplicate tariff for %s", tariff.Service)
		}
		for method, price := range tariff.Prices {
			if !method.Valid() {
				return nil, fmt.Errorf("tariff %s: unknown payment method %q", tariff.Service, method)
			}
			if price < 0 {
				return nil, fmt.Errorf("tariff %s: negative price for %s", tariff.Service, method)
			}
		}
		t.byService[tariff.Service] = tariff
	}
	return t, nil
}

// Base returns the undiscounted price of a service for the payment method.
func (t *Tariffs) Base(service ServiceType, method PaymentMethod) (int64, error) {
	tariff, ok := t.byService[service]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownTariff, service, method)
	}
	price, ok := tariff.Prices[method]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnknownTariff, service, method)
	}
	return price, nil
}

// Amount returns the payable price: the tariff with the payment-method discount applied.
func (t *Tariffs) Amount(service ServiceType, method PaymentMethod) (int64, error) {
	base, err := t.Base(service, method)
	if err != nil {
		return 0, err
	}
	return DiscountedAmount(base, method), nil
}

// Lookup returns the full tariff for a service.
func (t *Tariffs) Lookup(service ServiceType) (Tariff, bool) {
	tariff, ok := t.byService[service]
	return tariff, ok
}

// List returns every tariff ordered by service name.
func (t *Tariffs) List() []Tariff {
	out := make([]Tariff, 0, len(t.byService))
	for _, tariff := range t.byService {
		out = append(out, tariff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
