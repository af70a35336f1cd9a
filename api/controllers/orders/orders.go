package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/invoices"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Service is the fulfillment surface the order routes need.
type Service interface {
	GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.AggregateOrder, error)
	GetUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) (*models.FulfillmentUnit, error)
	ListOrders(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.AggregateOrder, string, error)
	ListUnits(ctx context.Context, actor auth.Actor, status enums.FulfillmentStatus, params pagination.Params) ([]models.FulfillmentUnit, string, error)
	Transition(ctx context.Context, actor auth.Actor, unitID uuid.UUID, to enums.FulfillmentStatus) (*models.FulfillmentUnit, error)
	CancelOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID, reason string) (*models.AggregateOrder, error)
}

type InvoiceService interface {
	GetByUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) (*invoices.View, error)
	RenderForUnit(ctx context.Context, actor auth.Actor, unitID uuid.UUID) ([]byte, error)
}

type TrackingReader interface {
	ListTracking(ctx context.Context, unitID uuid.UUID) ([]models.ShipmentTrackingEvent, error)
}

// List returns the buyer's orders, newest first.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orders, next, err := svc.ListOrders(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := OrderListResponse{Orders: make([]OrderResponse, 0, len(orders)), NextCursor: next}
		for i := range orders {
			out.Orders = append(out.Orders, NewOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// Get returns one order; sellers only see their own units.
func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.PathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel cancels every unit of the order while all of them are still cancellable.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.PathID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CancelOrder(r.Context(), actor, orderID, validators.SanitizeString(payload.Reason, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewOrderResponse(order))
	}
}

// ListUnits returns the seller's units, optionally filtered by ?status=.
func ListUnits(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := enums.FulfillmentStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))))
		units, next, err := svc.ListUnits(r.Context(), actor, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := UnitListResponse{Units: make([]UnitResponse, 0, len(units)), NextCursor: next}
		for i := range units {
			out.Units = append(out.Units, NewUnitResponse(&units[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetUnit(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := validators.PathID(r, "unitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unit, err := svc.GetUnit(r.Context(), actor, unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewUnitResponse(unit))
	}
}

type transitionRequest struct {
	Status enums.FulfillmentStatus `json:"status" validate:"required"`
}

// TransitionUnit moves a unit one step along the fulfillment machine.
func TransitionUnit(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := validators.PathID(r, "unitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload transitionRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to := enums.FulfillmentStatus(strings.ToUpper(strings.TrimSpace(string(payload.Status))))
		if !to.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown fulfillment status %q", payload.Status))
			return
		}
		unit, err := svc.Transition(r.Context(), actor, unitID, to)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, NewUnitResponse(unit))
	}
}

// Invoice returns the unit's stored invoice figures.
func Invoice(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := validators.PathID(r, "unitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetByUnit(r.Context(), actor, unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// InvoiceDocument renders the invoice as plain text.
func InvoiceDocument(svc InvoiceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := validators.PathID(r, "unitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := svc.RenderForUnit(r.Context(), actor, unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(doc); err != nil && logg != nil {
			logg.Error(r.Context(), "write invoice document", err)
		}
	}
}

// Tracking lists carrier events for a unit the caller may see.
func Tracking(svc Service, tracking TrackingReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitID, err := validators.PathID(r, "unitId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := svc.GetUnit(r.Context(), actor, unitID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, err := tracking.ListTracking(r.Context(), unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tracking events"))
			return
		}
		responses.WriteSuccess(w, newTrackingResponse(events))
	}
}
