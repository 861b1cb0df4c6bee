package checkout_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carecart/pkg/cart"
	"carecart/pkg/checkout"
	"carecart/pkg/notify"
	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/schedule"
	"carecart/pkg/storage/memory"
)

var start = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// harness wires a checkout against in-memory storage and a virtual clock.
type harness struct {
	clock     *schedule.Virtual
	port      *memory.Store
	cart      *cart.Store
	orders    *order.StorageRepository
	tracker   *order.Tracker
	feed      *notify.Feed
	navigated []string
	svc       *checkout.Service
	issued    int
}

func newHarness(logger *zap.Logger) (*harness, error) {
	h := &harness{clock: schedule.NewVirtual(start), port: memory.New()}
	return h, h.wire(logger)
}

// wire builds every component on top of the harness port, as a fresh process would.
func (h *harness) wire(logger *zap.Logger) error {
	ctx := context.Background()
	store, err := cart.NewStore(ctx, h.port, logger)
	if err != nil {
		return err
	}
	tariffs, err := pricing.NewTariffs(pricing.DefaultTariffs())
	if err != nil {
		return err
	}
	h.cart = store
	h.orders = order.NewRepository(h.port, logger)
	h.tracker, err = order.NewTracker(h.orders, h.clock, order.WithTrackerLogger(logger))
	if err != nil {
		return err
	}
	h.feed = notify.NewFeed(0, logger)
	h.svc, err = checkout.NewService(checkout.Deps{
		Cart:      h.cart,
		Tariffs:   tariffs,
		Orders:    h.orders,
		Tracker:   h.tracker,
		Scheduler: h.clock,
		Notifier:  h.feed,
		Navigator: checkout.NavigatorFunc(func(id string) { h.navigated = append(h.navigated, id) }),
		Logger:    logger,
		NewID: func() string {
			h.issued++
			return fmt.Sprintf("ORDER%04d", h.issued)
		},
	})
	return err
}

func recipient() cart.RecipientProfile {
	return cart.RecipientProfile{
		FullName: "Amina Benali",
		Phone:    "0550 12 34 56",
		Address:  "12 rue Didouche Mourad",
		Wilaya:   "Alger",
		Baladiya: "Alger Centre",
	}
}

func bankForm() checkout.Form {
	return checkout.Form{
		Recipient:     recipient(),
		PaymentMethod: pricing.BankCard,
		CardNumber:    "4111 1111 1111 1111",
		CardHolder:    "AMINA BENALI",
		ExpiryMonth:   "09",
		ExpiryYear:    "30",
		CVV:           "987",
	}
}

func loyaltyForm() checkout.Form {
	return checkout.Form{
		Recipient:     recipient(),
		PaymentMethod: pricing.LoyaltyCard,
		CardNumber:    "GC-100234",
		CardHolder:    "AMINA BENALI",
	}
}

func product(id, unitPrice int64) cart.Product {
	return cart.Product{ID: id, Name: fmt.Sprintf("Product %d", id), UnitPrice: unitPrice, Unit: "box", Category: "pharmacy"}
}
