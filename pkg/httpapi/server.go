package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"carecart/pkg/cart"
	"carecart/pkg/catalog"
	"carecart/pkg/checkout"
	"carecart/pkg/notify"
	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/schedule"
)

// requestTimeout bounds how long a handler waits for the event loop.
const requestTimeout = 3 * time.Second

// Navigation remembers where the client should be sent after a checkout created an order.
type Navigation struct {
	mu     sync.Mutex
	target string
}

// Navigate records the tracking page of the order.
func (n *Navigation) Navigate(orderID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = "/track/" + orderID
}

// Target returns the last recorded destination.
func (n *Navigation) Target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// Deps are the components the API exposes. Every call into Cart, Checkout and Tracker is
// executed on Loop.
type Deps struct {
	Loop       schedule.Executor
	Catalog    *catalog.Catalog
	Cart       *cart.Store
	Checkout   *checkout.Service
	Tracker    *order.Tracker
	Tariffs    *pricing.Tariffs
	Feed       *notify.Feed
	Navigation *Navigation
	Logger     *zap.Logger
}

// Server wires HTTP endpoints to the cart, checkout and order tracking.
type Server struct {
	loop       schedule.Executor
	catalog    *catalog.Catalog
	cart       *cart.Store
	checkout   *checkout.Service
	tracker    *order.Tracker
	tariffs    *pricing.Tariffs
	feed       *notify.Feed
	navigation *Navigation
	logger     *zap.Logger
}

// New checks the dependencies once so handlers never meet a nil component.
func New(d Deps) (*Server, error) {
	if d.Loop == nil || d.Catalog == nil || d.Cart == nil || d.Checkout == nil || d.Tracker == nil || d.Tariffs == nil || d.Feed == nil {
		return nil, errors.New("httpapi: missing dependency")
	}
	if d.Navigation == nil {
		d.Navigation = &Navigation{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Server{
		loop:       d.Loop,
		catalog:    d.Catalog,
		cart:       d.Cart,
		checkout:   d.Checkout,
		tracker:    d.Tracker,
		tariffs:    d.Tariffs,
		feed:       d.Feed,
		navigation: d.Navigation,
		logger:     d.Logger,
	}, nil
}

// Handler exposes the JSON API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/catalog", s.listCatalog)
	mux.HandleFunc("GET /api/tariffs", s.listTariffs)
	mux.HandleFunc("GET /api/cart", s.getCart)
	mux.HandleFunc("DELETE /api/cart", s.clearCart)
	mux.HandleFunc("POST /api/cart/items", s.addCartItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", s.setCartQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{id}", s.removeCartItem)
	mux.HandleFunc("GET /api/checkout/prefill", s.prefill)
	mux.HandleFunc("POST /api/checkout/quote", s.quote)
	mux.HandleFunc("POST /api/checkout", s.submit)
	mux.HandleFunc("GET /api/checkout/status", s.checkoutStatus)
	mux.HandleFunc("POST /api/checkout/abort", s.abort)
	mux.HandleFunc("GET /api/orders/current", s.currentOrder)
	mux.HandleFunc("POST /api/orders/current/cancel", s.cancelOrder)
	mux.HandleFunc("GET /api/notifications", s.notifications)
	return mux
}

// cartView is the cart as the browse views read it.
type cartView struct {
	Items []cart.LineItem `json:"items"`
	Total int64           `json:"total"`
	Count int             `json:"count"`
}

func (s *Server) viewCart() cartView {
	items := s.cart.Items()
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return cartView{Items: items, Total: s.cart.TotalPrice(), Count: count}
}

func (s *Server) listCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.List(r.URL.Query().Get("category")))
}

func (s *Server) listTariffs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tariffs.List())
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	var view cartView
	if !s.run(w, r, func(context.Context) error { view = s.viewCart(); return nil }) {
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if !s.run(w, r, func(ctx context.Context) error { return s.cart.Clear(ctx) }) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// addCartItem resolves the product through the catalog so clients cannot set their own prices.
func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID int64 `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	product, err := s.catalog.Lookup(payload.ProductID)
	if err != nil {
		s.respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	var view cartView
	ok := s.run(w, r, func(ctx context.Context) error {
		if _, err := s.cart.AddItem(ctx, product); err != nil {
			return err
		}
		view = s.viewCart()
		return nil
	})
	if !ok {
		return
	}
	s.logger.Info("cart item added", zap.Int64("product_id", product.ID))
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.respondError(w, "invalid id", http.StatusBadRequest)
		return
	}
	var payload struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Quantity == nil {
		s.respondError(w, "quantity is required", http.StatusBadRequest)
		return
	}
	s.updateQuantity(w, r, id, *payload.Quantity)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.respondError(w, "invalid id", http.StatusBadRequest)
		return
	}
	s.updateQuantity(w, r, id, 0)
}

func (s *Server) updateQuantity(w http.ResponseWriter, r *http.Request, id int64, n int) {
	var view cartView
	ok := s.run(w, r, func(ctx context.Context) error {
		if err := s.cart.SetQuantity(ctx, id, n); err != nil {
			return err
		}
		view = s.viewCart()
		return nil
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) prefill(w http.ResponseWriter, r *http.Request) {
	method := pricing.PaymentMethod(r.URL.Query().Get("method"))
	var response struct {
		Recipient cart.RecipientProfile     `json:"recipient"`
		Payment   *cart.SavedPaymentProfile `json:"payment,omitempty"`
	}
	ok := s.run(w, r, func(context.Context) error {
		response.Recipient, response.Payment = s.checkout.Prefill(method)
		return nil
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) quote(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.respondError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var q checkout.Quote
	ok := s.run(w, r, func(context.Context) error {
		var err error
		q, err = s.checkout.Quote(form)
		return err
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var form checkout.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.respondError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var q checkout.Quote
	ok := s.run(w, r, func(ctx context.Context) error {
		var err error
		q, err = s.checkout.Submit(ctx, form)
		return err
	})
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, q)
}

func (s *Server) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	var response struct {
		checkout.Status
		Redirect string `json:"redirect,omitempty"`
	}
	ok := s.run(w, r, func(context.Context) error {
		response.Status = s.checkout.Status()
		return nil
	})
	if !ok {
		return
	}
	if response.OrderID != "" {
		response.Redirect = s.navigation.Target()
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	var aborted bool
	if !s.run(w, r, func(context.Context) error { aborted = s.checkout.Abort(); return nil }) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// currentOrder reports a missing order as an inactive result, not as an error.
func (s *Server) currentOrder(w http.ResponseWriter, r *http.Request) {
	var (
		o      order.Order
		active bool
	)
	ok := s.run(w, r, func(ctx context.Context) error {
		var err error
		o, active, err = s.tracker.Current(ctx)
		return err
	})
	if !ok {
		return
	}
	if !active {
		respondJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"active": true, "order": o})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var o order.Order
	ok := s.run(w, r, func(ctx context.Context) error {
		var err error
		o, err = s.tracker.Cancel(ctx)
		return err
	})
	if !ok {
		return
	}
	s.feed.Notify(notify.Notification{
		Title:       "Order cancelled",
		Description: "Order #" + o.ID + " has been cancelled.",
		Severity:    notify.SeverityInfo,
	})
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) notifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, s.feed.Recent(limit))
}

// run executes fn on the event loop and writes the error response when either the loop or
// fn fails. It reports whether the handler may write its success response.
func (s *Server) run(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) bool {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var fnErr error
	if err := s.loop.Do(ctx, func() { fnErr = fn(ctx) }); err != nil {
		fnErr = err
	}
	if fnErr == nil {
		return true
	}

	var validation *checkout.ValidationError
	switch {
	case errors.As(fnErr, &validation):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "validation failed", "fields": validation.Fields})
	case errors.Is(fnErr, pricing.ErrInvalidQuantity):
		s.respondError(w, fnErr.Error(), http.StatusBadRequest)
	case errors.Is(fnErr, cart.ErrItemNotFound), errors.Is(fnErr, order.ErrNoActiveOrder), errors.Is(fnErr, catalog.ErrNotFound):
		s.respondError(w, fnErr.Error(), http.StatusNotFound)
	case errors.Is(fnErr, checkout.ErrCheckoutInProgress), errors.Is(fnErr, schedule.ErrBusy):
		s.respondError(w, fnErr.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(fnErr))
		s.respondError(w, fnErr.Error(), http.StatusInternalServerError)
	}
	return false
}

// respondError keeps JSON formatting consistent across endpoints.
func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
