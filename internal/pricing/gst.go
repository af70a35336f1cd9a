package pricing

import "strings"

// GSTSplit is the invoice-time decomposition of a unit's tax.
type GSTSplit struct {
	CGSTPaise int64
	SGSTPaise int64
	IGSTPaise int64
}

// Total returns the tax carried by the split.
func (g GSTSplit) Total() int64 {
	return g.CGSTPaise + g.SGSTPaise + g.IGSTPaise
}

// Intrastate reports whether the split used CGST/SGST.
func (g GSTSplit) Intrastate() bool {
	return g.IGSTPaise == 0 && (g.CGSTPaise != 0 || g.SGSTPaise != 0)
}

// SplitGST halves tax into CGST/SGST (odd paisa to SGST) when both states
// match after trim and case-fold; otherwise the whole amount is IGST.
func SplitGST(sellerState, buyerState string, tax int64) GSTSplit {
	if SameState(sellerState, buyerState) {
		cgst := tax / 2
		return GSTSplit{CGSTPaise: cgst, SGSTPaise: tax - cgst}
	}
	return GSTSplit{IGSTPaise: tax}
}

// SameState compares two state names; blanks never match.
func SameState(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}
