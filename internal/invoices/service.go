package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/pricing"
	"github.com/angelmondragon/bazaar-backend/internal/sequence"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
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

// View is the consumer-facing invoice contract. Amounts are paise.
type View struct {
	InvoiceNumber string    `json:"invoiceNumber"`
	Subtotal      int64     `json:"subtotal"`
	CGST          int64     `json:"cgst"`
	SGST          int64     `json:"sgst"`
	IGST          int64     `json:"igst"`
	TotalTax      int64     `json:"totalTax"`
	TotalAmount   int64     `json:"totalAmount"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

func NewView(inv *models.Invoice) View {
	return View{
		InvoiceNumber: inv.InvoiceNumber,
		Subtotal:      inv.SubtotalPaise,
		CGST:          inv.CGSTPaise,
		SGST:          inv.SGSTPaise,
		IGST:          inv.IGSTPaise,
		TotalTax:      inv.TotalTaxPaise,
		TotalAmount:   inv.TotalAmountPaise,
		GeneratedAt:   inv.GeneratedAt,
	}
}

type ServiceParams struct {
	DB        txRunner
	Repo      *Repository
	Units     *fulfillment.Repository
	Catalog   *catalog.Repository
	Sequences *sequence.Repository
	Outbox    outboxPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

// Service issues one immutable GST invoice per confirmed fulfillment unit.
type Service struct {
	db        txRunner
	repo      *Repository
	units     *fulfillment.Repository
	catalog   *catalog.Repository
	sequences *sequence.Repository
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("invoice repository required")
	case params.Units == nil:
		return nil, fmt.Errorf("fulfillment repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Sequences == nil:
		return nil, fmt.Errorf("sequence repository required")
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
		db:        params.DB,
		repo:      params.Repo,
		units:     params.Units,
		catalog:   params.Catalog,
		sequences: params.Sequences,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       params.Now,
	}, nil
}

// Invoiceable reports whether a unit in status may carry an invoice.
func Invoiceable(status enums.FulfillmentStatus) bool {
	return status != enums.FulfillmentStatusPending && status != enums.FulfillmentStatusCancelled
}

// GenerateForUnit returns the unit's invoice, creating it on first call.
func (s *Service) GenerateForUnit(ctx context.Context, unitID uuid.UUID) (*models.Invoice, error) {
	var invoice *models.Invoice
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		invoice, err = s.generate(ctx, tx, unitID)
		return err
	})
	if err != nil && db.IsUniqueViolation(err, "") {
		// a concurrent generation won the unit_id race
		existing, findErr := s.repo.FindByUnit(ctx, unitID)
		if findErr == nil && existing != nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// GenerateForOrderOfUnit invoices every confirmed unit of the order owning unitID.
// It is the CONFIRMED side effect; one unit failing does not stop the others.
func (s *Service) GenerateForOrderOfUnit(ctx context.Context, unitID uuid.UUID) error {
	unit, err := s.units.FindUnit(ctx, unitID)
	if err != nil {
		return err
	}
	return s.GenerateForOrder(ctx, unit.OrderID)
}

// GenerateForOrder invoices every invoiceable unit of the order.
func (s *Service) GenerateForOrder(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.units.FindOrder(ctx, orderID)
	if err != nil {
		return err
	}
	var errs error
	for _, unit := range order.Units {
		if !Invoiceable(unit.Status) {
			continue
		}
		if _, err := s.GenerateForUnit(ctx, unit.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("unit %s: %w", unit.UnitNumber, err))
		}
	}
	return errs
}

func (s *Service) generate(ctx context.Context, tx *gorm.DB, unitID uuid.UUID) (*models.Invoice, error) {
	repo := s.repo.WithTx(tx)
	if existing, err := repo.FindByUnit(ctx, unitID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	unitsRepo := s.units.WithTx(tx)
	unit, err := unitsRepo.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if !Invoiceable(unit.Status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "unit %s is %s and cannot be invoiced", unit.UnitNumber, unit.Status)
	}
	order, err := unitsRepo.FindOrder(ctx, unit.OrderID)
	if err != nil {
		return nil, err
	}
	seller, err := s.catalog.WithTx(tx).Seller(ctx, unit.SellerID)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now().UTC()
	year := generatedAt.Year()
	seq, err := s.sequences.WithTx(tx).Next(ctx, sequence.Invoices, year)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate invoice number")
	}

	split := pricing.SplitGST(seller.PickupAddress.State, order.ShippingAddress.State, unit.TaxPaise)
	invoice := &models.Invoice{
		ID:               uuid.New(),
		InvoiceNumber:    sequence.InvoiceNumber(year, seq),
		UnitID:           unit.ID,
		OrderID:          unit.OrderID,
		SellerID:         unit.SellerID,
		Year:             year,
		Sequence:         seq,
		SellerState:      seller.PickupAddress.State,
		BuyerState:       order.ShippingAddress.State,
		SubtotalPaise:    unit.SubtotalPaise,
		DiscountPaise:    unit.DiscountPaise,
		ShippingPaise:    unit.ShippingFeePaise,
		CGSTPaise:        split.CGSTPaise,
		SGSTPaise:        split.SGSTPaise,
		IGSTPaise:        split.IGSTPaise,
		TotalTaxPaise:    split.Total(),
		TotalAmountPaise: unit.SubtotalPaise - unit.DiscountPaise + unit.ShippingFeePaise + split.Total(),
		GeneratedAt:      generatedAt,
	}
	if err := repo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceGenerated,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         &outbox.ActorRef{Kind: string(enums.ActorKindSystem)},
		OccurredAt:    generatedAt,
		Data: payloads.InvoiceGeneratedEvent{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.InvoiceNumber,
			UnitID:        unit.ID,
			TotalPaise:    invoice.TotalAmountPaise,
		},
		Version: 1,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"unit_id":        unit.ID.String(),
	})
	s.logg.Info(logCtx, "invoice generated")
	return invoice, nil
}

// GetByUnit returns the unit's invoice to the buyer of the order, the seller of the unit or an admin.
func (s *Service) GetByUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) (*View, error) {
	invoice, _, err := s.load(ctx, actor, unitID)
	if err != nil {
		return nil, err
	}
	view := NewView(invoice)
	return &view, nil
}

// RenderForUnit re-renders the stored invoice as plain text.
func (s *Service) RenderForUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) ([]byte, error) {
	invoice, order, err := s.load(ctx, actor, unitID)
	if err != nil {
		return nil, err
	}
	unit, err := s.units.FindUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	seller, err := s.catalog.Seller(ctx, unit.SellerID)
	if err != nil {
		return nil, err
	}
	doc := Document{
		Invoice:     *invoice,
		OrderNumber: order.OrderNumber,
		UnitNumber:  unit.UnitNumber,
		SellerName:  seller.Name,
		BillTo:      order.ShippingAddress.Name,
		Items:       unit.Items,
	}
	if seller.GSTIN != nil {
		doc.SellerGSTIN = *seller.GSTIN
	}
	if doc.BillTo == "" {
		doc.BillTo = order.ShippingAddress.City
	}
	return Render(doc)
}

func (s *Service) load(ctx context.Context, actor auth.Actor, unitID uuid.UUID) (*models.Invoice, *models.AggregateOrder, error) {
	invoice, err := s.repo.FindByUnit(ctx, unitID)
	if err != nil {
		return nil, nil, err
	}
	if invoice == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	}
	order, err := s.units.FindOrder(ctx, invoice.OrderID)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case actor.IsAdmin():
	case actor.Owns(enums.ActorKindBuyer, order.BuyerID):
	case actor.Owns(enums.ActorKindSeller, invoice.SellerID):
	default:
		return nil, nil, pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another account")
	}
	return invoice, order, nil
}
