package helpers

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/catalog"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// SellerLine pairs a cart item with the catalog row it resolved to.
type SellerLine struct {
	Item    models.CartItem
	Variant catalog.Variant
}

// SellerGroup is every cart line owned by one seller.
type SellerGroup struct {
	SellerID uuid.UUID
	Lines    []SellerLine
}

// Subtotal is the undiscounted total of the group.
func (g SellerGroup) Subtotal() int64 {
	var total int64
	for _, line := range g.Lines {
		total += line.Item.UnitPricePaise * int64(line.Item.Quantity)
	}
	return total
}

// GroupCartItemsBySeller partitions the cart by owning seller. Groups follow
// the first appearance of each seller and lines keep their cart order.
func GroupCartItemsBySeller(items []models.CartItem, variants map[uuid.UUID]catalog.Variant) []SellerGroup {
	index := make(map[uuid.UUID]int)
	var groups []SellerGroup
	for _, item := range items {
		variant := variants[item.VariantID]
		pos, ok := index[variant.SellerID]
		if !ok {
			pos = len(groups)
			index[variant.SellerID] = pos
			groups = append(groups, SellerGroup{SellerID: variant.SellerID})
		}
		groups[pos].Lines = append(groups[pos].Lines, SellerLine{Item: item, Variant: variant})
	}
	return groups
}

// SellerIDs lists the group owners in group order.
func SellerIDs(groups []SellerGroup) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(groups))
	for _, group := range groups {
		ids = append(ids, group.SellerID)
	}
	return ids
}

// LineSubtotals flattens every group's line subtotals in group then line order.
func LineSubtotals(groups []SellerGroup) []int64 {
	var out []int64
	for _, group := range groups {
		for _, line := range group.Lines {
			out = append(out, line.Item.UnitPricePaise*int64(line.Item.Quantity))
		}
	}
	return out
}
