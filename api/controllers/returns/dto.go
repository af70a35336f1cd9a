package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

type ReturnListResponse struct {
	Returns    []ReturnResponse `json:"returns"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ReturnItemResponse struct {
	ID                uuid.UUID `json:"id"`
	FulfillmentItemID uuid.UUID `json:"fulfillment_item_id"`
	VariantID         uuid.UUID `json:"variant_id"`
	Quantity          int       `json:"quantity"`
	ClaimedRefund     int64     `json:"claimed_refund"`
}

type ReturnResponse struct {
	ID              uuid.UUID            `json:"id"`
	ReturnNumber    string               `json:"return_number"`
	UnitID          uuid.UUID            `json:"unit_id"`
	OrderID         uuid.UUID            `json:"order_id"`
	Reason          string               `json:"reason"`
	Status          string               `json:"status"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	Items           []ReturnItemResponse `json:"items"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	ReceivedAt      *time.Time           `json:"received_at,omitempty"`
	InspectedAt     *time.Time           `json:"inspected_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type RefundResponse struct {
	ID              uuid.UUID  `json:"id"`
	RefundNumber    string     `json:"refund_number"`
	ReturnID        uuid.UUID  `json:"return_id"`
	UnitID          uuid.UUID  `json:"unit_id"`
	OrderID         uuid.UUID  `json:"order_id"`
	Amount          int64      `json:"amount"`
	Status          string     `json:"status"`
	FailureReason   *string    `json:"failure_reason,omitempty"`
	GatewayRefundID *string    `json:"gateway_refund_id,omitempty"`
	Attempts        int        `json:"attempts"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newReturnResponse(req *models.ReturnRequest) ReturnResponse {
	items := make([]ReturnItemResponse, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ReturnItemResponse{
			ID:                item.ID,
			FulfillmentItemID: item.FulfillmentItemID,
			VariantID:         item.VariantID,
			Quantity:          item.Quantity,
			ClaimedRefund:     item.ClaimedRefundPaise,
		})
	}
	return ReturnResponse{
		ID:              req.ID,
		ReturnNumber:    req.ReturnNumber,
		UnitID:          req.UnitID,
		OrderID:         req.OrderID,
		Reason:          req.Reason,
		Status:          string(req.Status),
		RejectionReason: req.RejectionReason,
		Items:           items,
		ApprovedAt:      req.ApprovedAt,
		ReceivedAt:      req.ReceivedAt,
		InspectedAt:     req.InspectedAt,
		CompletedAt:     req.CompletedAt,
		CancelledAt:     req.CancelledAt,
		CreatedAt:       req.CreatedAt,
	}
}

func newRefundResponse(refund *models.Refund) RefundResponse {
	return RefundResponse{
		ID:              refund.ID,
		RefundNumber:    refund.RefundNumber,
		ReturnID:        refund.ReturnID,
		UnitID:          refund.UnitID,
		OrderID:         refund.OrderID,
		Amount:          refund.AmountPaise,
		Status:          string(refund.Status),
		FailureReason:   refund.FailureReason,
		GatewayRefundID: refund.GatewayRefundID,
		Attempts:        refund.Attempts,
		ProcessedAt:     refund.ProcessedAt,
		CreatedAt:       refund.CreatedAt,
	}
}
