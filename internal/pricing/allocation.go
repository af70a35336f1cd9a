package pricing

import (
	"fmt"
	"sort"
)

// AllocateDiscount spreads discount over weights (line subtotals) by largest
// remainder. Shares sum to discount exactly and never exceed their weight.
func AllocateDiscount(discount int64, weights []int64) ([]int64, error) {
	shares := make([]int64, len(weights))
	if discount == 0 {
		return shares, nil
	}
	if discount < 0 {
		return nil, fmt.Errorf("discount must not be negative")
	}
	var total int64
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("weight %d is negative", i)
		}
		total += w
	}
	if discount > total {
		return nil, fmt.Errorf("discount %d exceeds total %d", discount, total)
	}

	type remainder struct {
		index int
		rem   int64
	}
	rems := make([]remainder, len(weights))
	var allocated int64
	for i, w := range weights {
		// discount <= total keeps discount*w within int64 for any realistic cart.
		shares[i] = discount * w / total
		rems[i] = remainder{index: i, rem: discount * w % total}
		allocated += shares[i]
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem > rems[b].rem
	})
	for left := discount - allocated; left > 0; {
		for _, r := range rems {
			if left == 0 {
				break
			}
			if shares[r.index] < weights[r.index] {
				shares[r.index]++
				left--
			}
		}
	}
	return shares, nil
}
