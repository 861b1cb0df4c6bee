package cart

import "carecart/pkg/pricing"

// Product is the catalog descriptor handed to AddItem.
type Product struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	UnitPrice int64  `json:"unitPrice" yaml:"unitPrice"`
	Unit      string `json:"unit" yaml:"unit"`
	Category  string `json:"category" yaml:"category"`
}

// LineItem is one cart line. A cart holds at most one line per product id.
type LineItem struct {
	Product
	Quantity int `json:"quantity"`
}

// PriceParts exposes the line to the pricing engine.
func (l LineItem) PriceParts() (int64, int) {
	return l.UnitPrice, l.Quantity
}

// RecipientProfile is the delivery contact captured at checkout.
type RecipientProfile struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Wilaya   string `json:"wilaya"`
	Baladiya string `json:"baladiya"`
	Notes    string `json:"notes,omitempty"`
}

// SavedPaymentProfile is the payment data remembered for prefill. It has no security code
// field: the CVV is write-only and never reaches storage.
type SavedPaymentProfile struct {
	PaymentMethod pricing.PaymentMethod `json:"paymentMethod"`
	CardNumber    string                `json:"cardNumber"`
	CardHolder    string                `json:"cardHolder"`
	ExpiryMonth   string                `json:"expiryMonth"`
	ExpiryYear    string                `json:"expiryYear"`
}
