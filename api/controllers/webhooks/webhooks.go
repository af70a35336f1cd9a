package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
)

const maxWebhookBody = 1 << 20

type webhookGuard interface {
	Seen(ctx context.Context, source enums.WebhookSource, deliveryID string) (bool, error)
	Forget(ctx context.Context, source enums.WebhookSource, deliveryID string) error
}

type failureRecorder interface {
	Record(ctx context.Context, source enums.WebhookSource, eventID, reason string, payload []byte) error
}

// Ack is the body returned to providers. Every authenticated delivery gets a 200.
type Ack struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

const (
	ackProcessed = "processed"
	ackDuplicate = "duplicate"
	ackRejected  = "rejected"
)

// readSigned reads the raw body and checks its HMAC before anything is parsed.
func readSigned(r *http.Request, w http.ResponseWriter, secret, header string) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	if err := security.VerifySignature(secret, body, r.Header.Get(header)); err != nil {
		if errors.Is(err, security.ErrInvalidSignature) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify webhook signature")
	}
	return body, nil
}

// seen consults the Redis fast path. Redis trouble is logged and treated as
// unseen; the database ledger still dedupes.
func seen(ctx context.Context, guard webhookGuard, logg *logger.Logger, source enums.WebhookSource, eventID string) bool {
	if guard == nil || eventID == "" {
		return false
	}
	processed, err := guard.Seen(ctx, source, eventID)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
		return false
	}
	return processed
}

func forget(ctx context.Context, guard webhookGuard, logg *logger.Logger, source enums.WebhookSource, eventID string) {
	if guard == nil || eventID == "" {
		return
	}
	if err := guard.Forget(ctx, source, eventID); err != nil {
		logg.Error(ctx, "clear webhook idempotency mark", err)
	}
}

// reject stores the payload for reconciliation and still acknowledges it.
func reject(ctx context.Context, w http.ResponseWriter, failures failureRecorder, logg *logger.Logger, source enums.WebhookSource, eventID string, cause error, body []byte) {
	logg.Error(logg.WithField(ctx, "event_id", eventID), "webhook rejected", cause)
	if failures != nil {
		if err := failures.Record(ctx, source, eventID, cause.Error(), body); err != nil {
			logg.Error(ctx, "record webhook failure", err)
		}
	}
	responses.WriteSuccess(w, Ack{Status: ackRejected})
}
