package checkout

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"carecart/pkg/cart"
	"carecart/pkg/pricing"
)

// Form is the checkout submission. An empty Service means the cart is being checked out;
// otherwise the form books the named fixed-price service.
type Form struct {
	Service       pricing.ServiceType   `json:"service,omitempty"`
	Recipient     cart.RecipientProfile `json:"recipient"`
	PaymentMethod pricing.PaymentMethod `json:"paymentMethod"`
	CardNumber    string                `json:"cardNumber"`
	CardHolder    string                `json:"cardHolder"`
	ExpiryMonth   string                `json:"expiryMonth"`
	ExpiryYear    string                `json:"expiryYear"`
	CVV           string                `json:"cvv"`
	SaveCard      bool                  `json:"saveCard"`
}

// IsCart reports whether the form checks out the cart.
func (f Form) IsCart() bool {
	return f.Service == ""
}

// SavedProfile is what may be remembered of the form. The security code is left out.
func (f Form) SavedProfile() cart.SavedPaymentProfile {
	return cart.SavedPaymentProfile{
		PaymentMethod: f.PaymentMethod,
		CardNumber:    strings.TrimSpace(f.CardNumber),
		CardHolder:    strings.TrimSpace(f.CardHolder),
		ExpiryMonth:   strings.TrimSpace(f.ExpiryMonth),
		ExpiryYear:    strings.TrimSpace(f.ExpiryYear),
	}
}

// ValidationError maps form fields to the reason they were rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid checkout form: " + strings.Join(parts, "; ")
}

// IsValidation helps callers distinguish between user input and infrastructure failures.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var (
	// Algerian mobile numbers: 05, 06 or 07 followed by eight digits, optionally +213 instead of the 0.
	phonePattern      = regexp.MustCompile(`^(?:\+213|0)[567][0-9]{8}$`)
	cardNumberPattern = regexp.MustCompile(`^[0-9]{16}$`)
	loyaltyIDPattern  = regexp.MustCompile(`^[A-Za-z0-9-]{6,}$`)
	cvvPattern        = regexp.MustCompile(`^[0-9]{3}$`)
)

// Validate checks the form fields; now decides whether a card has expired.
func Validate(f Form, now time.Time) error {
	fields := make(map[string]string)
	required := func(field, value, message string) bool {
		if strings.TrimSpace(value) == "" {
			fields[field] = message
			return false
		}
		return true
	}

	r := f.Recipient
	required("fullName", r.FullName, "full name is required")
	if required("phone", r.Phone, "phone is required") && !phonePattern.MatchString(normalizePhone(r.Phone)) {
		fields["phone"] = "enter a mobile number such as 0550 12 34 56"
	}
	required("address", r.Address, "address is required")
	required("wilaya", r.Wilaya, "wilaya is required")
	required("baladiya", r.Baladiya, "baladiya is required")

	switch f.PaymentMethod {
	case pricing.BankCard:
		number := strings.ReplaceAll(f.CardNumber, " ", "")
		if required("cardNumber", number, "card number is required") && !cardNumberPattern.MatchString(number) {
			fields["cardNumber"] = "card number must have 16 digits"
		}
		required("cardHolder", f.CardHolder, "card holder is required")
		if msg := checkExpiry(f.ExpiryMonth, f.ExpiryYear, now); msg != "" {
			fields["expiry"] = msg
		}
		if required("cvv", f.CVV, "security code is required") && !cvvPattern.MatchString(strings.TrimSpace(f.CVV)) {
			fields["cvv"] = "security code must have 3 digits"
		}
	case pricing.LoyaltyCard:
		id := strings.TrimSpace(f.CardNumber)
		if required("cardNumber", id, "golden card number is required") && !loyaltyIDPattern.MatchString(id) {
			fields["cardNumber"] = "golden card number is not valid"
		}
		required("cardHolder", f.CardHolder, "card holder is required")
	default:
		fields["paymentMethod"] = "choose a payment method"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func normalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(phone))
}

func checkExpiry(month, year string, now time.Time) string {
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return "expiry month must be between 01 and 12"
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil || y < 0 {
		return "expiry year is not valid"
	}
	if y < 100 {
		y += 2000
	}
	if y < now.Year() || (y == now.Year() && time.Month(m) < now.Month()) {
		return "card has expired"
	}
	return ""
}
