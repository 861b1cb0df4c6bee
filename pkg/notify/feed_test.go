package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestFeed_KeepsNewestFirstWithinCapacity(t *testing.T) {
	f := NewFeed(3, zaptest.NewLogger(t))
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	f.clock = func() time.Time { return fixed }

	for _, title := range []string{"a", "b", "c", "d"} {
		f.Notify(Notification{Title: title})
	}

	got := f.Recent(0)
	assert.Len(t, got, 3)
	assert.Equal(t, "d", got[0].Title)
	assert.Equal(t, "b", got[2].Title)
	assert.Equal(t, SeverityInfo, got[0].Severity)
	assert.Equal(t, fixed, got[0].At)

	assert.Len(t, f.Recent(1), 1)
}

func TestFeed_Empty(t *testing.T) {
	assert.Empty(t, NewFeed(0, nil).Recent(5))
}
