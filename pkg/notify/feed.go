// Package notify keeps the user-facing notifications raised by checkout and tracking.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Severity grades a notification for display.
type Severity string

const (
	// SeverityInfo is a neutral status update.
	SeverityInfo Severity = "info"
	// SeveritySuccess reports a completed action such as a placed order.
	SeveritySuccess Severity = "success"
	// SeverityError reports a failed action.
	SeverityError Severity = "error"
)

// Notification is a transient toast.
type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	At          time.Time `json:"at"`
}

// DefaultCapacity bounds how many notifications a Feed keeps.
const DefaultCapacity = 50

// Feed records the latest notifications and logs each one. It is safe for concurrent use.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	clock    func() time.Time
	logger   *zap.Logger
}

// NewFeed returns an empty feed; a non-positive capacity selects DefaultCapacity.
func NewFeed(capacity int, logger *zap.Logger) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{capacity: capacity, clock: time.Now, logger: logger}
}

// Notify records n, stamping it when At is unset.
func (f *Feed) Notify(n Notification) {
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	f.mu.Lock()
	if n.At.IsZero() {
		n.At = f.clock().UTC()
	}
	f.items = append(f.items, n)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append([]Notification(nil), f.items[over:]...)
	}
	f.mu.Unlock()

	f.logger.Info("notification",
		zap.String("title", n.Title),
		zap.String("description", n.Description),
		zap.String("severity", string(n.Severity)))
}

// Recent returns up to limit notifications, newest first. A non-positive limit returns all.
func (f *Feed) Recent(limit int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.items) {
		limit = len(f.items)
	}
	out := make([]Notification, 0, limit)
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.items[i])
	}
	return out
}
