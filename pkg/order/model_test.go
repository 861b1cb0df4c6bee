package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecart/pkg/pricing"
)

func TestBuild_Delivery(t *testing.T) {
	o, err := Build(deliveryDraft(), "AB12CD34E", created)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "Golden card", o.PaymentMethod)
	assert.Equal(t, int64(1200), o.Amount)
	assert.Equal(t, "25 min", o.EstimatedTime)
	assert.Equal(t, "Pharmacy", o.CurrentLocation)
	require.Len(t, o.Steps, StepCount)
	assert.Equal(t, "Order received", o.Steps[0].Title)
	assert.Equal(t, "Delivered", o.Steps[4].Title)
	assert.True(t, o.Steps[0].Completed)
	assert.Equal(t, created.Format(time.RFC3339), o.Steps[0].Time)
	for _, s := range o.Steps[1:] {
		assert.False(t, s.Completed)
		assert.Empty(t, s.Time)
	}
	assert.Len(t, o.Items, 1)
}

func TestBuild_TransportHasNoItems(t *testing.T) {
	d := deliveryDraft()
	d.Type = TypeTransport
	d.Method = pricing.BankCard
	o, err := Build(d, "TR4NSP0RT", created)
	require.NoError(t, err)
	assert.Nil(t, o.Items)
	assert.Equal(t, "Request received", o.Steps[0].Title)
	assert.Equal(t, "Dispatch center", o.CurrentLocation)
	assert.Equal(t, "Bank card", o.PaymentMethod)
}

func TestBuild_Rejects(t *testing.T) {
	d := deliveryDraft()
	d.Type = "drone"
	_, err := Build(d, "AB12CD34E", created)
	assert.Error(t, err)

	_, err = Build(deliveryDraft(), " ", created)
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	steps := func(done int) []Step {
		s := make([]Step, StepCount)
		for i := 0; i < done; i++ {
			s[i].Completed = true
		}
		return s
	}
	assert.Equal(t, StatusPending, StatusFor(steps(0)))
	assert.Equal(t, StatusPending, StatusFor(steps(1)))
	assert.Equal(t, StatusConfirmed, StatusFor(steps(2)))
	assert.Equal(t, StatusInProgress, StatusFor(steps(3)))
	assert.Equal(t, StatusInProgress, StatusFor(steps(4)))
	assert.Equal(t, StatusDelivered, StatusFor(steps(5)))
}

func TestStepsOrdered(t *testing.T) {
	assert.True(t, StepsOrdered([]Step{{Completed: true}, {Completed: true}, {}, {}}))
	assert.True(t, StepsOrdered([]Step{{}, {}}))
	assert.False(t, StepsOrdered([]Step{{Completed: true}, {}, {Completed: true}}))
}

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "************1111", MaskCardNumber("4111 1111 1111 1111"))
	assert.Equal(t, "*****0234", MaskCardNumber("GC-100234"))
	assert.Equal(t, "123", MaskCardNumber("123"))
}
