package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

var fallbackTaxRate = decimal.RequireFromString("0.18")

// Calculator applies the configured tax, commission and shipping rules.
type Calculator struct {
	defaultTax           decimal.Decimal
	taxByCategory        map[string]decimal.Decimal
	defaultCommission    decimal.Decimal
	commissionByCategory map[string]decimal.Decimal
	shippingFee          int64
	freeShippingAbove    int64
}

// NewCalculator parses the rate strings in cfg. Category keys are matched case-insensitively.
func NewCalculator(cfg config.FulfillmentConfig) (*Calculator, error) {
	defaultTax, err := parseRate("default tax rate", cfg.DefaultTaxRate, fallbackTaxRate)
	if err != nil {
		return nil, err
	}
	defaultCommission, err := parseRate("default commission rate", cfg.DefaultCommissionRate, decimal.Zero)
	if err != nil {
		return nil, err
	}
	taxByCategory, err := parseRateMap("tax", cfg.CategoryTaxRates)
	if err != nil {
		return nil, err
	}
	commissionByCategory, err := parseRateMap("commission", cfg.CategoryCommissionRates)
	if err != nil {
		return nil, err
	}
	if cfg.ShippingFeePaise < 0 || cfg.FreeShippingAbovePaise < 0 {
		return nil, fmt.Errorf("shipping amounts must not be negative")
	}
	return &Calculator{
		defaultTax:           defaultTax,
		taxByCategory:        taxByCategory,
		defaultCommission:    defaultCommission,
		commissionByCategory: commissionByCategory,
		shippingFee:          cfg.ShippingFeePaise,
		freeShippingAbove:    cfg.FreeShippingAbovePaise,
	}, nil
}

// TaxRate resolves the GST rate for a product category, falling back to the flat default.
func (c *Calculator) TaxRate(category string) decimal.Decimal {
	if rate, ok := c.taxByCategory[normalizeCategory(category)]; ok {
		return rate
	}
	return c.defaultTax
}

// CommissionRate resolves seller override, then category rate, then the default.
func (c *Calculator) CommissionRate(sellerOverride decimal.NullDecimal, category string) decimal.Decimal {
	if sellerOverride.Valid {
		return sellerOverride.Decimal
	}
	if rate, ok := c.commissionByCategory[normalizeCategory(category)]; ok {
		return rate
	}
	return c.defaultCommission
}

// ShippingFee is the flat per-unit fee, waived once the unit subtotal reaches the threshold.
func (c *Calculator) ShippingFee(unitSubtotal int64) int64 {
	if c.shippingFee == 0 {
		return 0
	}
	if c.freeShippingAbove > 0 && unitSubtotal >= c.freeShippingAbove {
		return 0
	}
	return c.shippingFee
}

// Line is one priced cart line entering the calculator.
type Line struct {
	Category       string
	UnitPricePaise int64
	Quantity       int
}

// Subtotal is the price snapshot times quantity.
func (l Line) Subtotal() int64 {
	return l.UnitPricePaise * int64(l.Quantity)
}

// PricedLine carries the computed money fields for one item.
type PricedLine struct {
	SubtotalPaise  int64
	DiscountPaise  int64
	TaxRate        decimal.Decimal
	TaxPaise       int64
	LineTotalPaise int64
}

// UnitInput describes one seller's share of the cart.
type UnitInput struct {
	SellerCommission decimal.NullDecimal
	Lines            []Line
	// Discounts holds the coupon share already allocated to each line.
	Discounts []int64
}

// UnitBreakdown is the full money breakdown of a fulfillment unit.
type UnitBreakdown struct {
	Lines             []PricedLine
	SubtotalPaise     int64
	DiscountPaise     int64
	TaxPaise          int64
	ShippingFeePaise  int64
	CommissionRate    decimal.Decimal
	PlatformFeePaise  int64
	SellerPayoutPaise int64
}

// PriceUnit computes item taxes on the discounted base, then fee and payout on the undiscounted subtotal.
func (c *Calculator) PriceUnit(in UnitInput) (UnitBreakdown, error) {
	if len(in.Lines) == 0 {
		return UnitBreakdown{}, fmt.Errorf("unit has no lines")
	}
	if in.Discounts != nil && len(in.Discounts) != len(in.Lines) {
		return UnitBreakdown{}, fmt.Errorf("expected %d discount shares, got %d", len(in.Lines), len(in.Discounts))
	}

	out := UnitBreakdown{Lines: make([]PricedLine, len(in.Lines))}
	for i, line := range in.Lines {
		if line.Quantity <= 0 || line.UnitPricePaise < 0 {
			return UnitBreakdown{}, fmt.Errorf("line %d has invalid price or quantity", i)
		}
		var discount int64
		if in.Discounts != nil {
			discount = in.Discounts[i]
		}
		subtotal := line.Subtotal()
		if discount < 0 || discount > subtotal {
			return UnitBreakdown{}, fmt.Errorf("line %d discount %d outside [0,%d]", i, discount, subtotal)
		}
		rate := c.TaxRate(line.Category)
		tax := RoundPaise(decimal.NewFromInt(subtotal - discount).Mul(rate))
		out.Lines[i] = PricedLine{
			SubtotalPaise:  subtotal,
			DiscountPaise:  discount,
			TaxRate:        rate,
			TaxPaise:       tax,
			LineTotalPaise: subtotal - discount + tax,
		}
		out.SubtotalPaise += subtotal
		out.DiscountPaise += discount
		out.TaxPaise += tax
	}

	out.ShippingFeePaise = c.ShippingFee(out.SubtotalPaise)
	out.CommissionRate = c.CommissionRate(in.SellerCommission, dominantCategory(in.Lines))
	out.PlatformFeePaise = RoundPaise(decimal.NewFromInt(out.SubtotalPaise).Mul(out.CommissionRate))
	out.SellerPayoutPaise = Payout(out.SubtotalPaise, out.TaxPaise, out.ShippingFeePaise, out.PlatformFeePaise)
	return out, nil
}

// Payout is subtotal + tax + shipping - platform fee.
func Payout(subtotal, tax, shipping, platformFee int64) int64 {
	return subtotal + tax + shipping - platformFee
}

// RoundPaise rounds half away from zero to a whole paisa.
func RoundPaise(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// dominantCategory picks the category carrying the largest subtotal; ties keep the first seen.
func dominantCategory(lines []Line) string {
	totals := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		key := normalizeCategory(line.Category)
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += line.Subtotal()
	}
	best := ""
	var bestTotal int64 = -1
	for _, key := range order {
		if totals[key] > bestTotal {
			best, bestTotal = key, totals[key]
		}
	}
	return best
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func parseRate(name, raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", name, raw, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s %s must be within [0,1]", name, rate)
	}
	return rate, nil
}

func parseRateMap(kind string, raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for category, value := range raw {
		rate, err := parseRate(fmt.Sprintf("%s rate for %q", kind, category), value, decimal.Zero)
		if err != nil {
			return nil, err
		}
		out[normalizeCategory(category)] = rate
	}
	return out, nil
}
