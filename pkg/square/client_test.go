package square

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type fakeRefunds struct {
	got  *sq.RefundPaymentRequest
	resp *sq.RefundPaymentResponse
	err  error
}

func (f *fakeRefunds) RefundPayment(_ context.Context, req *sq.RefundPaymentRequest, _ ...sqoption.RequestOption) (*sq.RefundPaymentResponse, error) {
	f.got = req
	return f.resp, f.err
}

func validParams() RefundParams {
	return RefundParams{
		PaymentID:      " pay_123 ",
		AmountPaise:    55000,
		Reason:         "return RET-2026-00004",
		IdempotencyKey: "REF-2026-00001",
	}
}

func TestRefundPaymentSubmitsRequest(t *testing.T) {
	fake := &fakeRefunds{resp: refundResponse(t, `{"refund":{"id":"rf_1","status":"pending"}}`)}
	c := &Client{refunds: fake}

	result, err := c.RefundPayment(context.Background(), validParams())
	require.NoError(t, err)
	require.Equal(t, &RefundResult{ID: "rf_1", Status: "PENDING"}, result)

	require.Equal(t, "REF-2026-00001", fake.got.IdempotencyKey)
	require.Equal(t, "pay_123", *fake.got.PaymentID)
	require.Equal(t, int64(55000), *fake.got.AmountMoney.Amount)
	require.Equal(t, sq.Currency("INR"), *fake.got.AmountMoney.Currency)
}

func TestRefundPaymentRejectedStatusIsDependencyError(t *testing.T) {
	fake := &fakeRefunds{resp: refundResponse(t, `{"refund":{"id":"rf_2","status":"REJECTED"}}`)}
	c := &Client{refunds: fake}

	result, err := c.RefundPayment(context.Background(), validParams())
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	require.Equal(t, "rf_2", result.ID)
}

func TestRefundPaymentValidatesBeforeCalling(t *testing.T) {
	fake := &fakeRefunds{}
	c := &Client{refunds: fake}
	for name, mutate := range map[string]func(*RefundParams){
		"payment":  func(p *RefundParams) { p.PaymentID = " " },
		"amount":   func(p *RefundParams) { p.AmountPaise = 0 },
		"key":      func(p *RefundParams) { p.IdempotencyKey = "" },
		"long key": func(p *RefundParams) { p.IdempotencyKey = strings.Repeat("k", 46) },
	} {
		params := validParams()
		mutate(&params)
		_, err := c.RefundPayment(context.Background(), params)
		require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code(), name)
	}
	require.Nil(t, fake.got)
}

func TestRefundPaymentMapsSquareErrors(t *testing.T) {
	table := []struct {
		name   string
		status int
		body   string
		want   pkgerrors.Code
	}{
		{"auth", http.StatusUnauthorized, `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`, pkgerrors.CodeUnauthorized},
		{"key reused", http.StatusBadRequest, `{"errors":[{"category":"INVALID_REQUEST_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`, pkgerrors.CodeIdempotency},
		{"status only", http.StatusUnprocessableEntity, `not json`, pkgerrors.CodeStateConflict},
		{"server", http.StatusBadGateway, `{}`, pkgerrors.CodeDependency},
	}
	for _, tt := range table {
		c := &Client{refunds: &fakeRefunds{err: sqcore.NewAPIError(tt.status, errors.New(tt.body))}}
		_, err := c.RefundPayment(context.Background(), validParams())
		require.Equal(t, tt.want, pkgerrors.As(err).Code(), tt.name)
	}

	c := &Client{refunds: &fakeRefunds{err: context.DeadlineExceeded}}
	_, err := c.RefundPayment(context.Background(), validParams())
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefundReasonIsTruncated(t *testing.T) {
	params := validParams()
	params.Reason = strings.Repeat("x", 300)
	req, err := params.request()
	require.NoError(t, err)
	require.Len(t, *req.Reason, maxReasonLen)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.SquareConfig{AccessToken: "tok", Env: "staging"}, nil)
	require.Error(t, err)
	_, err = NewClient(context.Background(), config.SquareConfig{Env: "sandbox"}, nil)
	require.Error(t, err)

	c, err := NewClient(context.Background(), config.SquareConfig{AccessToken: "tok", Env: "Production"}, nil)
	require.NoError(t, err)
	require.Equal(t, "production", c.Environment())
}

func TestMaskID(t *testing.T) {
	require.Equal(t, "*****_123", maskID("pay_x_123"))
	require.Equal(t, "***", maskID("abc"))
}

func refundResponse(t *testing.T, body string) *sq.RefundPaymentResponse {
	t.Helper()
	var resp sq.RefundPaymentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	return &resp
}
