// Package checkout turns a validated form into a paid, tracked order.
//
// Submit stores the recipient, applies the save-card choice and starts the settlement
// simulation. When the simulation completes the order is built, stored in the current
// order slot and handed to the tracker, the paid lines leave the cart for cart checkouts, and the
// customer is notified and navigated to the tracking view.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"carecart/internal/ids"
	"carecart/pkg/cart"
	"carecart/pkg/notify"
	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/processing"
	"carecart/pkg/schedule"
)

// ErrCheckoutInProgress is returned when a submission arrives while another one settles.
var ErrCheckoutInProgress = errors.New("a checkout is already processing")

// cartServiceLabel names cart orders on the order record.
const cartServiceLabel = "Pharmacy order"

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(n notify.Notification)
}

// Navigator receives the id of a freshly created order.
type Navigator interface {
	Navigate(orderID string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(orderID string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(orderID string) { f(orderID) }

// Quote is the payable amount of a form.
type Quote struct {
	Service  pricing.ServiceType   `json:"service,omitempty"`
	Label    string                `json:"label"`
	Method   pricing.PaymentMethod `json:"paymentMethod"`
	Base     int64                 `json:"baseAmount"`
	Discount int64                 `json:"discount"`
	Amount   int64                 `json:"amount"`
}

// Status describes the current or last submission.
type Status struct {
	Processing bool                 `json:"processing"`
	Progress   *processing.Progress `json:"progress,omitempty"`
	Quote      *Quote               `json:"quote,omitempty"`
	OrderID    string               `json:"orderId,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// Deps are the collaborators of a Service. Cart, Tariffs, Orders, Tracker and Scheduler
// are required.
type Deps struct {
	Cart      *cart.Store
	Tariffs   *pricing.Tariffs
	Orders    order.Repository
	Tracker   *order.Tracker
	Scheduler schedule.Scheduler
	Notifier  Notifier
	Navigator Navigator
	Logger    *zap.Logger
	// Processing configures every settlement run.
	Processing []processing.Option
	// NewID issues order ids; defaults to ids.New.
	NewID func() string
}

// attempt is one submission from validation to order creation. For cart checkouts, items
// are the lines the quote was computed from.
type attempt struct {
	form    Form
	quote   Quote
	items   []cart.LineItem
	sim     *processing.Simulator
	orderID string
	err     error
}

// Service runs checkouts on the event loop of its scheduler. It is not safe for concurrent use.
type Service struct {
	deps    Deps
	logger  *zap.Logger
	current *attempt
}

// NewService checks the dependencies and fills in defaults.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Cart == nil:
		return nil, errors.New("checkout needs a cart store")
	case d.Tariffs == nil:
		return nil, errors.New("checkout needs tariffs")
	case d.Orders == nil:
		return nil, errors.New("checkout needs an order repository")
	case d.Tracker == nil:
		return nil, errors.New("checkout needs an order tracker")
	case d.Scheduler == nil:
		return nil, errors.New("checkout needs a scheduler")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewFeed(0, d.Logger)
	}
	if d.Navigator == nil {
		d.Navigator = NavigatorFunc(func(string) {})
	}
	if d.NewID == nil {
		d.NewID = ids.New
	}
	return &Service{deps: d, logger: d.Logger}, nil
}

// Prefill returns the saved recipient and, when it was saved for method, the payment profile.
func (s *Service) Prefill(method pricing.PaymentMethod) (cart.RecipientProfile, *cart.SavedPaymentProfile) {
	recipient, _ := s.deps.Cart.Recipient()
	if saved, ok := s.deps.Cart.PaymentPrefill(method); ok {
		return recipient, &saved
	}
	return recipient, nil
}

// Quote computes the amount payable for the form's service or cart and payment method.
func (s *Service) Quote(f Form) (Quote, error) {
	if !f.PaymentMethod.Valid() {
		return Quote{}, &ValidationError{Fields: map[string]string{"paymentMethod": "choose a payment method"}}
	}
	q := Quote{Service: f.Service, Method: f.PaymentMethod}
	if f.IsCart() {
		if s.deps.Cart.Len() == 0 {
			return Quote{}, &ValidationError{Fields: map[string]string{"cart": "cart is empty"}}
		}
		q.Label = cartServiceLabel
		q.Base = s.deps.Cart.TotalPrice()
	} else {
		tariff, ok := s.deps.Tariffs.Lookup(f.Service)
		if !ok {
			return Quote{}, &ValidationError{Fields: map[string]string{"service": "unknown service"}}
		}
		base, err := s.deps.Tariffs.Base(f.Service, f.PaymentMethod)
		if err != nil {
			return Quote{}, err
		}
		q.Label = tariff.Label
		q.Base = base
	}
	q.Amount = pricing.DiscountedAmount(q.Base, f.PaymentMethod)
	q.Discount = q.Base - q.Amount
	return q, nil
}

// Submit validates the form and starts settlement. Nothing is stored when validation fails.
func (s *Service) Submit(ctx context.Context, f Form) (Quote, error) {
	if s.processing() {
		return Quote{}, ErrCheckoutInProgress
	}
	if err := Validate(f, s.deps.Scheduler.Now()); err != nil {
		s.rejected(err)
		return Quote{}, err
	}
	q, err := s.Quote(f)
	if err != nil {
		if IsValidation(err) {
			s.rejected(err)
		}
		return Quote{}, err
	}

	if err := s.deps.Cart.SaveRecipientProfile(ctx, f.Recipient); err != nil {
		return Quote{}, fmt.Errorf("save recipient: %w", err)
	}
	if err := s.deps.Cart.SaveSavedPaymentProfile(ctx, f.SavedProfile(), f.SaveCard); err != nil {
		return Quote{}, fmt.Errorf("save payment profile: %w", err)
	}
	// the security code is not needed past validation
	f.CVV = ""

	opts := append([]processing.Option{processing.WithLogger(s.logger)}, s.deps.Processing...)
	sim, err := processing.New(s.deps.Scheduler, opts...)
	if err != nil {
		return Quote{}, fmt.Errorf("configure processing: %w", err)
	}
	a := &attempt{form: f, quote: q, sim: sim}
	if f.IsCart() {
		a.items = s.deps.Cart.Items()
	}
	s.current = a
	if err := sim.Start(nil, func() { s.complete(a) }); err != nil {
		a.err = err
		s.deps.Notifier.Notify(notify.Notification{
			Title:       "Payment could not be processed",
			Description: "Please try again in a moment.",
			Severity:    notify.SeverityError,
		})
		return Quote{}, err
	}
	s.logger.Info("checkout submitted",
		zap.String("service", q.Label),
		zap.String("payment_method", string(q.Method)),
		zap.Int64("amount", q.Amount))
	return q, nil
}

// Status reports the current or last submission.
func (s *Service) Status() Status {
	a := s.current
	if a == nil {
		return Status{}
	}
	p := a.sim.Snapshot()
	q := a.quote
	st := Status{Processing: s.processing(), Progress: &p, Quote: &q, OrderID: a.orderID}
	if a.err != nil {
		st.Error = a.err.Error()
	}
	return st
}

// Abort tears down a running settlement, as when the customer leaves the page. It reports
// whether anything was running.
func (s *Service) Abort() bool {
	if !s.processing() {
		return false
	}
	s.current.sim.Cancel()
	s.logger.Info("checkout aborted")
	return true
}

func (s *Service) processing() bool {
	if s.current == nil {
		return false
	}
	state := s.current.sim.Snapshot().State
	return state == processing.StateRunning || state == processing.StateSettling
}

func (s *Service) rejected(err error) {
	var v *ValidationError
	description := "Please check the highlighted fields."
	if errors.As(err, &v) && len(v.Fields) == 1 {
		for _, msg := range v.Fields {
			description = strings.ToUpper(msg[:1]) + msg[1:] + "."
		}
	}
	s.deps.Notifier.Notify(notify.Notification{
		Title:       "Check your details",
		Description: description,
		Severity:    notify.SeverityError,
	})
}

// complete runs on the scheduler once settlement finished.
func (s *Service) complete(a *attempt) {
	ctx := context.Background()
	o, err := s.materialize(ctx, a)
	if err != nil {
		a.err = err
		s.logger.Error("order creation failed", zap.Error(err))
		s.deps.Notifier.Notify(notify.Notification{
			Title:       "Order could not be saved",
			Description: "Your payment was not taken. Please try again.",
			Severity:    notify.SeverityError,
		})
		return
	}
	a.orderID = o.ID
	s.deps.Notifier.Notify(notify.Notification{
		Title:       "Order confirmed",
		Description: fmt.Sprintf("Order #%s is on its way. Total paid: %d DA.", o.ID, o.Amount),
		Severity:    notify.SeveritySuccess,
	})
	s.deps.Navigator.Navigate(o.ID)
}

func (s *Service) materialize(ctx context.Context, a *attempt) (order.Order, error) {
	f := a.form
	draft := order.Draft{
		Type:     order.TypeDelivery,
		Service:  a.quote.Label,
		Address:  formatAddress(f.Recipient),
		Amount:   a.quote.Amount,
		Method:   f.PaymentMethod,
		Customer: f.Recipient,
		Payment: order.PaymentDetails{
			Method:     f.PaymentMethod,
			CardNumber: order.MaskCardNumber(f.CardNumber),
			CardHolder: strings.TrimSpace(f.CardHolder),
		},
		EstimatedTime: order.EstimateLabel(s.deps.Tracker.Offsets()),
	}
	if f.IsCart() {
		draft.Items = a.items
	} else if tariff, ok := s.deps.Tariffs.Lookup(f.Service); ok && tariff.Kind == string(order.TypeTransport) {
		draft.Type = order.TypeTransport
	}

	o, err := order.Build(draft, s.deps.NewID(), s.deps.Scheduler.Now())
	if err != nil {
		return order.Order{}, err
	}
	if err := s.deps.Orders.PutCurrentOrder(ctx, o); err != nil {
		return order.Order{}, fmt.Errorf("store order %s: %w", o.ID, err)
	}
	if f.IsCart() {
		if err := s.deps.Cart.Settle(ctx, a.items); err != nil {
			s.logger.Error("cart settlement failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if _, err := s.deps.Tracker.Track(ctx, o); err != nil {
		s.logger.Error("order tracking failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	s.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("type", string(o.Type)),
		zap.Int64("amount", o.Amount))
	return o, nil
}

func formatAddress(r cart.RecipientProfile) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Address, r.Baladiya, r.Wilaya} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
