package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

const (
	pending   = enums.FulfillmentStatusPending
	confirmed = enums.FulfillmentStatusConfirmed
	packed    = enums.FulfillmentStatusPacked
	shipped   = enums.FulfillmentStatusShipped
	ofd       = enums.FulfillmentStatusOutForDelivery
	delivered = enums.FulfillmentStatusDelivered
	cancelled = enums.FulfillmentStatusCancelled
	returned  = enums.FulfillmentStatusReturned
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(pending, confirmed))
	assert.True(t, CanTransition(confirmed, cancelled))
	assert.True(t, CanTransition(delivered, returned))
	assert.False(t, CanTransition(pending, shipped))
	assert.False(t, CanTransition(shipped, cancelled))
	assert.False(t, CanTransition(cancelled, pending))
	assert.False(t, CanTransition(returned, delivered))

	assert.True(t, Cancellable(pending))
	assert.False(t, Cancellable(packed))
}

func TestForwardPath(t *testing.T) {
	path, ok := ForwardPath(confirmed, shipped)
	assert.True(t, ok)
	assert.Equal(t, []enums.FulfillmentStatus{enums.FulfillmentStatusProcessing, packed, shipped}, path)

	path, ok = ForwardPath(delivered, shipped)
	assert.True(t, ok)
	assert.Empty(t, path)

	_, ok = ForwardPath(cancelled, delivered)
	assert.False(t, ok)
}

func TestDeriveOrderStatus(t *testing.T) {
	cases := []struct {
		name string
		in   []enums.FulfillmentStatus
		want enums.AggregateOrderStatus
	}{
		{"empty", nil, enums.AggregateOrderStatusPending},
		{"all pending", []enums.FulfillmentStatus{pending, confirmed}, enums.AggregateOrderStatusPending},
		{"one shipped", []enums.FulfillmentStatus{shipped, pending}, enums.AggregateOrderStatusPartiallyShipped},
		{"all shipped", []enums.FulfillmentStatus{shipped, ofd}, enums.AggregateOrderStatusShipped},
		{"scenario C", []enums.FulfillmentStatus{delivered, shipped}, enums.AggregateOrderStatusPartiallyDelivered},
		{"all delivered", []enums.FulfillmentStatus{delivered, delivered}, enums.AggregateOrderStatusDelivered},
		{"all cancelled", []enums.FulfillmentStatus{cancelled, cancelled}, enums.AggregateOrderStatusCancelled},
		{"one cancelled", []enums.FulfillmentStatus{cancelled, confirmed}, enums.AggregateOrderStatusPending},
		{"all returned", []enums.FulfillmentStatus{returned}, enums.AggregateOrderStatusReturned},
		{"partly returned", []enums.FulfillmentStatus{returned, delivered}, enums.AggregateOrderStatusPartiallyReturned},
		{"returned while another ships", []enums.FulfillmentStatus{returned, shipped}, enums.AggregateOrderStatusPartiallyDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveOrderStatus(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, DeriveOrderStatus(tc.in), "derivation must be stable")
		})
	}
}

func TestDeriveOrderStatusIgnoresOrder(t *testing.T) {
	a := DeriveOrderStatus([]enums.FulfillmentStatus{delivered, shipped, pending})
	b := DeriveOrderStatus([]enums.FulfillmentStatus{pending, delivered, shipped})
	assert.Equal(t, a, b)
}
