package enums

// CartStatus tracks whether a cart can still be checked out.
type CartStatus string

const (
	CartStatusActive   CartStatus = "ACTIVE"
	CartStatusConsumed CartStatus = "CONSUMED"
)

// String implements fmt.Stringer.
func (c CartStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CartStatus.
func (c CartStatus) IsValid() bool {
	return c == CartStatusActive || c == CartStatusConsumed
}
