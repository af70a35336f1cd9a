package square

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const requestTimeout = 20 * time.Second

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// refundAPI is the slice of the Square SDK the refund flow calls.
type refundAPI interface {
	RefundPayment(ctx context.Context, req *sq.RefundPaymentRequest, opts ...sqoption.RequestOption) (*sq.RefundPaymentResponse, error)
}

// Client submits buyer refunds for prepaid orders to Square.
type Client struct {
	refunds refundAPI
	env     string
	logg    *logger.Logger
}

// NewClient builds a Square client for the configured environment. Outbound
// calls are traced through otelhttp.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("square environment %q is not sandbox or production", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
		sqoption.WithHTTPClient(&http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	)
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return &Client{refunds: sdk.Refunds, env: env, logg: logg}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.env
}

// RefundPayment refunds part of a captured payment. The refund number doubles
// as the Square idempotency key so a replayed call never pays out twice.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	req, err := params.request()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund request")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "refund_payment",
		"payment":      maskID(params.PaymentID),
		"amount_paise": params.AmountPaise,
		"refund_key":   req.IdempotencyKey,
	})

	started := time.Now()
	resp, err := c.refunds.RefundPayment(ctx, req)
	ctx = c.logg.WithField(ctx, "took_ms", time.Since(started).Milliseconds())
	if err != nil {
		mapped := mapError(err, "refund payment")
		c.logg.Error(ctx, "square.refund_failed", mapped)
		return nil, mapped
	}

	refund := resp.GetRefund()
	if refund == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square refund response missing refund")
	}
	result := &RefundResult{ID: stringOf(refund.GetID()), Status: strings.ToUpper(stringOf(refund.GetStatus()))}
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"square_refund_id": result.ID,
		"square_status":    result.Status,
	}), "square.refund_submitted")

	if result.Failed() {
		return result, pkgerrors.Newf(pkgerrors.CodeDependency, "square refund %s", strings.ToLower(result.Status))
	}
	return result, nil
}

// maskID keeps the last four characters of a gateway id for log correlation.
func maskID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) <= 4 {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-4) + id[len(id)-4:]
}

// stringOf flattens SDK fields that are plain strings on some resources and
// pointers on others.
func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		if s != nil {
			return *s
		}
	}
	return ""
}
