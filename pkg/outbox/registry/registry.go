// Package registry decides where each outbox row goes and proves its payload
// still decodes before it leaves the database.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

// maxEnvelopeVersion is the newest envelope layout this build understands.
const maxEnvelopeVersion = 1

type route struct {
	aggregate enums.OutboxAggregateType
	decode    func(json.RawMessage) (any, error)
}

func on[T any](aggregate enums.OutboxAggregateType) route {
	return route{
		aggregate: aggregate,
		decode: func(data json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(data, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

var routes = map[enums.OutboxEventType]route{
	enums.EventOrderCreated:        on[payloads.OrderCreatedEvent](enums.AggregateOrder),
	enums.EventOrderStatusChanged:  on[payloads.OrderStatusChangedEvent](enums.AggregateOrder),
	enums.EventOrderCancelled:      on[payloads.OrderCancelledEvent](enums.AggregateOrder),
	enums.EventPaymentConfirmed:    on[payloads.PaymentStatusEvent](enums.AggregateOrder),
	enums.EventPaymentFailed:       on[payloads.PaymentStatusEvent](enums.AggregateOrder),
	enums.EventUnitStatusChanged:   on[payloads.UnitStatusChangedEvent](enums.AggregateFulfillmentUnit),
	enums.EventShipmentCreated:     on[payloads.ShipmentCreatedEvent](enums.AggregateFulfillmentUnit),
	enums.EventReturnStatusChanged: on[payloads.ReturnStatusChangedEvent](enums.AggregateReturnRequest),
	enums.EventRefundStatusChanged: on[payloads.RefundStatusChangedEvent](enums.AggregateRefund),
	enums.EventInvoiceGenerated:    on[payloads.InvoiceGeneratedEvent](enums.AggregateInvoice),
}

// Resolved is a decoded outbox row ready to publish.
type Resolved struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// PermanentError marks a row that will never publish no matter how often it
// is retried. The publisher dead-letters these immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// EventRegistry routes events to topics by aggregate: orders and payments to
// the orders topic, units and shipments to fulfillment, returns and refunds
// to returns, invoices to invoices.
type EventRegistry struct {
	topics map[enums.OutboxAggregateType]string
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:           cfg.OrdersTopic,
		enums.AggregateFulfillmentUnit: cfg.FulfillmentTopic,
		enums.AggregateReturnRequest:   cfg.ReturnsTopic,
		enums.AggregateRefund:          cfg.ReturnsTopic,
		enums.AggregateInvoice:         cfg.InvoicesTopic,
	}
	for aggregate, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("no topic configured for %s events", aggregate)
		}
	}
	return &EventRegistry{topics: topics}, nil
}

// Resolve validates the row and decodes its typed payload. Every error it
// returns is permanent.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	rt, ok := routes[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("unknown event type %q", event.EventType))
	}
	if rt.aggregate != event.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, rt.aggregate, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate id missing"))
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if env.Version < 1 || env.Version > maxEnvelopeVersion {
		return nil, Permanent(fmt.Errorf("envelope version %d not supported", env.Version))
	}
	if env.EventID == "" {
		return nil, Permanent(errors.New("envelope event id missing"))
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s has no data", event.EventType))
	}
	payload, err := rt.decode(data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s: %w", event.EventType, err))
	}
	return &Resolved{
		Topic:    r.topics[rt.aggregate],
		Envelope: env,
		Payload:  payload,
	}, nil
}
