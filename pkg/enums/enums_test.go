package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFulfillmentStatus(t *testing.T) {
	got, err := ParseFulfillmentStatus("OUT_FOR_DELIVERY")
	require.NoError(t, err)
	assert.Equal(t, FulfillmentStatusOutForDelivery, got)

	_, err = ParseFulfillmentStatus("out_for_delivery")
	assert.Error(t, err)
	assert.False(t, FulfillmentStatus("LOST").IsValid())
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []ReturnStatus{ReturnStatusRejected, ReturnStatusCompleted, ReturnStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, ReturnStatusInspected.IsTerminal())

	assert.True(t, RefundStatusCompleted.IsTerminal())
	assert.False(t, RefundStatusFailed.IsTerminal())
}

func TestParseActorKind(t *testing.T) {
	got, err := ParseActorKind(" Seller ")
	require.NoError(t, err)
	assert.Equal(t, ActorKindSeller, got)

	_, err = ParseActorKind("guest")
	assert.Error(t, err)
}

func TestParseOutboxEventType(t *testing.T) {
	got, err := ParseOutboxEventType("invoice_generated")
	require.NoError(t, err)
	assert.Equal(t, EventInvoiceGenerated, got)
	assert.False(t, OutboxEventType("license_expired").IsValid())
}
