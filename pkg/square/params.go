package square

import (
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"
)

const (
	defaultCurrency = "INR"
	maxReasonLen    = 192
	maxKeyLen       = 45
)

// RefundParams describes one refund against a captured payment.
type RefundParams struct {
	PaymentID      string
	AmountPaise    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) request() (*sq.RefundPaymentRequest, error) {
	paymentID := strings.TrimSpace(p.PaymentID)
	key := strings.TrimSpace(p.IdempotencyKey)
	switch {
	case paymentID == "":
		return nil, errors.New("payment id is required")
	case p.AmountPaise <= 0:
		return nil, errors.New("refund amount must be positive")
	case key == "":
		return nil, errors.New("idempotency key is required")
	case len(key) > maxKeyLen:
		return nil, errors.New("idempotency key exceeds 45 characters")
	}

	currency := sq.Currency(strings.ToUpper(strings.TrimSpace(p.Currency)))
	if currency == "" {
		currency = defaultCurrency
	}
	amount := p.AmountPaise
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: key,
		PaymentID:      &paymentID,
		AmountMoney:    &sq.Money{Amount: &amount, Currency: &currency},
	}
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		if len(reason) > maxReasonLen {
			reason = reason[:maxReasonLen]
		}
		req.Reason = &reason
	}
	return req, nil
}

// RefundResult is Square's view of a submitted refund.
type RefundResult struct {
	ID     string
	Status string
}

// Failed reports whether Square rejected the refund outright. PENDING counts
// as accepted; Square settles it asynchronously.
func (r RefundResult) Failed() bool {
	s := strings.ToUpper(r.Status)
	return s == "FAILED" || s == "REJECTED"
}
