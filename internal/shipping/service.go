package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/pkg/carrier"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Carrier books pickups. *carrier.Client satisfies it.
type Carrier interface {
	CreateShipment(ctx context.Context, req carrier.ShipmentRequest) (*carrier.Shipment, error)
}

type ServiceParams struct {
	DB      txRunner
	Units   *fulfillment.Repository
	Catalog *catalog.Repository
	Carrier Carrier
	Outbox  outboxPublisher
	Logger  *logger.Logger
	Now     func() time.Time
}

// Service creates carrier shipments for confirmed units.
type Service struct {
	db      txRunner
	units   *fulfillment.Repository
	catalog *catalog.Repository
	carrier Carrier
	outbox  outboxPublisher
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Units == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Carrier == nil:
		return nil, fmt.Errorf("carrier required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Service{
		db:      params.DB,
		units:   params.Units,
		catalog: params.Catalog,
		carrier: params.Carrier,
		outbox:  params.Outbox,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

// Shippable reports whether a unit may be booked with the carrier.
func Shippable(status enums.FulfillmentStatus) bool {
	switch status {
	case enums.FulfillmentStatusConfirmed, enums.FulfillmentStatusProcessing, enums.FulfillmentStatusPacked:
		return true
	default:
		return false
	}
}

// CreateForUnit books a pickup for the unit. Units that already carry an AWB
// or are not awaiting dispatch are skipped. A carrier failure is recorded on
// the unit for the retry job and returned.
func (s *Service) CreateForUnit(ctx context.Context, unitID uuid.UUID) error {
	unit, err := s.units.FindUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if unit.AWBNumber != nil || !Shippable(unit.Status) {
		return nil
	}
	order, err := s.units.FindOrder(ctx, unit.OrderID)
	if err != nil {
		return err
	}
	seller, err := s.catalog.Seller(ctx, unit.SellerID)
	if err != nil {
		return err
	}

	shipment, err := s.carrier.CreateShipment(ctx, buildRequest(order, unit, seller))
	if err != nil {
		if recErr := s.units.RecordShipmentFailure(ctx, unit.ID, err.Error(), s.now().UTC()); recErr != nil {
			s.logg.Error(ctx, "record shipment failure", recErr)
		}
		return err
	}

	details := fulfillment.ShipmentDetails{
		AWBNumber:   shipment.AWBNumber,
		CourierName: shipment.CourierName,
		TrackingURL: shipment.TrackingURL,
		LabelURL:    shipment.LabelURL,
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		stored, err := s.units.WithTx(tx).SetShipment(ctx, unit.ID, details, s.now().UTC())
		if err != nil {
			return err
		}
		if !stored {
			return nil
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"unit_id": unit.ID.String(),
			"awb":     shipment.AWBNumber,
		})
		s.logg.Info(logCtx, "shipment created")
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentCreated,
			AggregateType: enums.AggregateFulfillmentUnit,
			AggregateID:   unit.ID,
			Actor:         &outbox.ActorRef{Kind: string(enums.ActorKindSystem)},
			OccurredAt:    s.now().UTC(),
			Data: payloads.ShipmentCreatedEvent{
				UnitID:      unit.ID,
				AWBNumber:   shipment.AWBNumber,
				CourierName: shipment.CourierName,
				TrackingURL: shipment.TrackingURL,
			},
			Version: 1,
		})
	})
}

func buildRequest(order *models.AggregateOrder, unit *models.FulfillmentUnit, seller *models.Seller) carrier.ShipmentRequest {
	req := carrier.ShipmentRequest{
		Reference:       unit.UnitNumber,
		PickupAddress:   seller.PickupAddress,
		DeliveryAddress: order.ShippingAddress,
		PaymentMode:     "PREPAID",
	}
	for _, item := range unit.Items {
		req.Items = append(req.Items, carrier.Item{
			Name:       item.ProductName,
			Quantity:   item.Quantity,
			PricePaise: item.UnitPricePaise,
		})
	}
	if order.PaymentMethod == enums.PaymentMethodCOD {
		due := unit.SubtotalPaise - unit.DiscountPaise + unit.TaxPaise + unit.ShippingFeePaise
		req.PaymentMode = "COD"
		req.CODAmountPaise = &due
	}
	return req
}
