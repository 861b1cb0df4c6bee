package order

import (
	"fmt"
	"strings"
	"time"

	"carecart/pkg/cart"
	"carecart/pkg/pricing"
)

// Type distinguishes pharmacy deliveries from patient transport bookings.
type Type string

const (
	// TypeDelivery is a pharmacy cart delivered to the recipient.
	TypeDelivery Type = "delivery"
	// TypeTransport is a booked patient transport service.
	TypeTransport Type = "transport"
)

// Valid reports whether t is a known order type.
func (t Type) Valid() bool {
	return t == TypeDelivery || t == TypeTransport
}

// Status is derived from the completed steps, except for cancelled which is set externally.
type Status string

const (
	// StatusPending is a placed order that nobody confirmed yet.
	StatusPending Status = "pending"
	// StatusConfirmed means the order was accepted.
	StatusConfirmed Status = "confirmed"
	// StatusInProgress means the order is on its way.
	StatusInProgress Status = "in-progress"
	// StatusDelivered means every step completed.
	StatusDelivered Status = "delivered"
	// StatusCancelled is set by the user and stops all further transitions.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no automatic transition may change the status any more.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// StepCount is the number of fulfillment steps every order carries.
const StepCount = 5

// Step is one entry of the fulfillment timeline. Only Completed, Time and Location change
// after the order is created.
type Step struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Time      string `json:"time,omitempty"`
	Location  string `json:"location,omitempty"`
}

// PaymentDetails is the snapshot of how the order was paid, with the card number masked.
type PaymentDetails struct {
	Method     pricing.PaymentMethod `json:"method"`
	CardNumber string                `json:"cardNumber,omitempty"`
	CardHolder string                `json:"cardHolder,omitempty"`
}

// Order is the record kept in the current order slot.
type Order struct {
	ID              string                `json:"id"`
	Type            Type                  `json:"type"`
	Service         string                `json:"service"`
	Status          Status                `json:"status"`
	CreatedAt       time.Time             `json:"createdAt"`
	EstimatedTime   string                `json:"estimatedTime"`
	CurrentLocation string                `json:"currentLocation"`
	Address         string                `json:"address"`
	Amount          int64                 `json:"amount"`
	PaymentMethod   string                `json:"paymentMethod"`
	CustomerInfo    cart.RecipientProfile `json:"customerInfo"`
	PaymentDetails  PaymentDetails        `json:"paymentDetails"`
	Items           []cart.LineItem       `json:"items,omitempty"`
	Steps           []Step                `json:"steps"`
}

// Draft carries what checkout knows when the settlement completes.
type Draft struct {
	Type          Type
	Service       string
	Address       string
	Amount        int64
	Method        pricing.PaymentMethod
	Customer      cart.RecipientProfile
	Payment       PaymentDetails
	Items         []cart.LineItem
	EstimatedTime string
}

// stepPlans holds the canonical timelines; the last location is always the customer address.
var stepPlans = map[Type]struct {
	titles    [StepCount]string
	locations [StepCount - 1]string
}{
	TypeDelivery: {
		titles:    [StepCount]string{"Order received", "Order confirmed", "Preparing your order", "On the way", "Delivered"},
		locations: [StepCount - 1]string{"Pharmacy", "Pharmacy", "Pharmacy", "En route"},
	},
	TypeTransport: {
		titles:    [StepCount]string{"Request received", "Request confirmed", "Dispatching vehicle", "En route to you", "Arrived"},
		locations: [StepCount - 1]string{"Dispatch center", "Dispatch center", "Dispatch center", "En route"},
	},
}

// Build materializes a new order. Step 0 is completed at createdAt, the others are pending.
func Build(d Draft, id string, createdAt time.Time) (Order, error) {
	plan, ok := stepPlans[d.Type]
	if !ok {
		return Order{}, fmt.Errorf("unknown order type %q", d.Type)
	}
	if strings.TrimSpace(id) == "" {
		return Order{}, fmt.Errorf("order id is required")
	}
	o := Order{
		ID:             id,
		Type:           d.Type,
		Service:        d.Service,
		CreatedAt:      createdAt.UTC(),
		EstimatedTime:  d.EstimatedTime,
		Address:        d.Address,
		Amount:         d.Amount,
		PaymentMethod:  d.Method.Label(),
		CustomerInfo:   d.Customer,
		PaymentDetails: d.Payment,
		Steps:          make([]Step, StepCount),
	}
	if d.Type == TypeDelivery && len(d.Items) > 0 {
		o.Items = append([]cart.LineItem(nil), d.Items...)
	}
	for i, title := range plan.titles {
		o.Steps[i] = Step{Title: title}
	}
	o.completeStep(0, o.CreatedAt)
	return o, nil
}

// StepLocation names where the order is once step i is done.
func (o Order) StepLocation(i int) string {
	plan := stepPlans[o.Type]
	if i >= len(plan.locations) {
		return o.Address
	}
	return plan.locations[i]
}

// completeStep marks step i done and refreshes the derived fields.
func (o *Order) completeStep(i int, at time.Time) {
	o.Steps[i].Completed = true
	o.Steps[i].Time = at.UTC().Format(time.RFC3339)
	o.Steps[i].Location = o.StepLocation(i)
	o.CurrentLocation = o.Steps[i].Location
	if o.Status != StatusCancelled {
		o.Status = StatusFor(o.Steps)
	}
}

// HighestCompleted returns the index of the last completed step, or -1.
func HighestCompleted(steps []Step) int {
	highest := -1
	for i, s := range steps {
		if s.Completed {
			highest = i
		}
	}
	return highest
}

// StatusFor derives the status from the completed steps.
func StatusFor(steps []Step) Status {
	switch h := HighestCompleted(steps); {
	case h <= 0:
		return StatusPending
	case h == 1:
		return StatusConfirmed
	case h == len(steps)-1:
		return StatusDelivered
	default:
		return StatusInProgress
	}
}

// StepsOrdered reports whether no completed step follows an incomplete one.
func StepsOrdered(steps []Step) bool {
	seenIncomplete := false
	for _, s := range steps {
		if !s.Completed {
			seenIncomplete = true
		} else if seenIncomplete {
			return false
		}
	}
	return true
}

// MaskCardNumber keeps only the last four characters of a card number or loyalty id.
func MaskCardNumber(number string) string {
	digits := strings.ReplaceAll(number, " ", "")
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

// EstimateLabel renders the time to the final step for display.
func EstimateLabel(offsets []time.Duration) string {
	if len(offsets) == 0 {
		return ""
	}
	return fmt.Sprintf("%d min", int(offsets[len(offsets)-1].Round(time.Minute)/time.Minute))
}
