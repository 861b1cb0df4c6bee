// Package cart owns the shopping cart and the two checkout profiles of the session and
// writes every change through to durable storage.
package cart

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"carecart/pkg/pricing"
	"carecart/pkg/storage"
)

// ErrItemNotFound is returned when a positive quantity is set on a line the cart does not hold.
var ErrItemNotFound = errors.New("cart item not found")

// Store holds the session cart. It is not safe for concurrent use; callers run it on the
// event loop.
type Store struct {
	port   storage.Port
	logger *zap.Logger

	items     []LineItem
	recipient *RecipientProfile
	payment   *SavedPaymentProfile
}

// NewStore loads the cart and both profiles. Corrupt stored values are logged and replaced
// by their empty default; only a failing port is reported.
func NewStore(ctx context.Context, port storage.Port, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{port: port, logger: logger}

	var items []LineItem
	if ok, err := s.load(ctx, storage.KeyCart, &items); err != nil {
		return nil, err
	} else if ok {
		s.items = sanitize(items)
	}

	var recipient RecipientProfile
	if ok, err := s.load(ctx, storage.KeyRecipient, &recipient); err != nil {
		return nil, err
	} else if ok {
		s.recipient = &recipient
	}

	var payment SavedPaymentProfile
	if ok, err := s.load(ctx, storage.KeyPayment, &payment); err != nil {
		return nil, err
	} else if ok && payment.PaymentMethod.Valid() {
		s.payment = &payment
	}
	return s, nil
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	ok, err := storage.GetJSON(ctx, s.port, key, v)
	var decodeErr *storage.DecodeError
	if errors.As(err, &decodeErr) {
		s.logger.Warn("discarding corrupt stored value", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return ok, err
}

// sanitize drops lines a well-behaved writer would never produce and merges duplicate ids.
func sanitize(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// AddItem increments the line for p.ID or appends a new line with quantity 1.
func (s *Store) AddItem(ctx context.Context, p Product) (LineItem, error) {
	i := s.indexOf(p.ID)
	if i >= 0 {
		s.items[i].Quantity++
	} else {
		i = len(s.items)
		s.items = append(s.items, LineItem{Product: p, Quantity: 1})
	}
	line := s.items[i]
	s.logger.Debug("cart item added", zap.Int64("product_id", p.ID), zap.Int("quantity", line.Quantity))
	return line, s.persistItems(ctx)
}

// SetQuantity sets the quantity of a line. Zero removes the line and is a no-op when the line
// is absent; a positive quantity on an absent line returns ErrItemNotFound.
func (s *Store) SetQuantity(ctx context.Context, id int64, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: got %d", pricing.ErrInvalidQuantity, n)
	}
	i := s.indexOf(id)
	if i < 0 {
		if n == 0 {
			return nil
		}
		return fmt.Errorf("%w: product %d", ErrItemNotFound, id)
	}
	if n == 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	} else {
		s.items[i].Quantity = n
	}
	s.logger.Debug("cart quantity set", zap.Int64("product_id", id), zap.Int("quantity", n))
	return s.persistItems(ctx)
}

// Clear empties the cart and removes its stored representation.
func (s *Store) Clear(ctx context.Context) error {
	s.items = nil
	if err := s.port.Remove(ctx, storage.KeyCart); err != nil {
		return fmt.Errorf("remove %s: %w", storage.KeyCart, err)
	}
	return nil
}

// Settle takes paid lines out of the cart. Each line's quantity drops by the paid quantity
// and lines that reach zero are removed; anything added after paid was captured stays.
// An emptied cart is cleared.
func (s *Store) Settle(ctx context.Context, paid []LineItem) error {
	for _, p := range paid {
		i := s.indexOf(p.ID)
		if i < 0 {
			continue
		}
		if s.items[i].Quantity > p.Quantity {
			s.items[i].Quantity -= p.Quantity
			continue
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	if len(s.items) == 0 {
		return s.Clear(ctx)
	}
	return s.persistItems(ctx)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []LineItem {
	return append([]LineItem(nil), s.items...)
}

// QuantityOf returns the quantity held for id, zero when absent.
func (s *Store) QuantityOf(id int64) int {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i].Quantity
	}
	return 0
}

// TotalPrice is the cart total before any payment discount.
func (s *Store) TotalPrice() int64 {
	total, err := pricing.CartTotal(s.items)
	if err != nil {
		// unreachable: stored quantities are always positive
		s.logger.Error("cart total failed", zap.Error(err))
		return 0
	}
	return total
}

// Len reports the number of distinct lines.
func (s *Store) Len() int {
	return len(s.items)
}

// Recipient returns the saved delivery contact.
func (s *Store) Recipient() (RecipientProfile, bool) {
	if s.recipient == nil {
		return RecipientProfile{}, false
	}
	return *s.recipient, true
}

// SaveRecipientProfile overwrites the delivery contact.
func (s *Store) SaveRecipientProfile(ctx context.Context, p RecipientProfile) error {
	s.recipient = &p
	return storage.PutJSON(ctx, s.port, storage.KeyRecipient, p)
}

// SavedPayment returns the remembered payment profile, if any.
func (s *Store) SavedPayment() (SavedPaymentProfile, bool) {
	if s.payment == nil {
		return SavedPaymentProfile{}, false
	}
	return *s.payment, true
}

// SaveSavedPaymentProfile stores p when the user consents. Without consent any previously
// remembered profile is erased.
func (s *Store) SaveSavedPaymentProfile(ctx context.Context, p SavedPaymentProfile, consent bool) error {
	if !consent {
		s.payment = nil
		if err := s.port.Remove(ctx, storage.KeyPayment); err != nil {
			return fmt.Errorf("remove %s: %w", storage.KeyPayment, err)
		}
		return nil
	}
	if !p.PaymentMethod.Valid() {
		return fmt.Errorf("unsupported payment method %q", p.PaymentMethod)
	}
	s.payment = &p
	return storage.PutJSON(ctx, s.port, storage.KeyPayment, p)
}

// PaymentPrefill returns the remembered profile only when it was saved for method.
func (s *Store) PaymentPrefill(method pricing.PaymentMethod) (SavedPaymentProfile, bool) {
	if s.payment == nil || s.payment.PaymentMethod != method {
		return SavedPaymentProfile{}, false
	}
	return *s.payment, true
}

func (s *Store) indexOf(id int64) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistItems(ctx context.Context) error {
	items := s.items
	if items == nil {
		items = []LineItem{}
	}
	return storage.PutJSON(ctx, s.port, storage.KeyCart, items)
}
