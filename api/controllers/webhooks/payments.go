package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const PaymentSignatureHeader = "X-Bazaar-Signature"

type PaymentService interface {
	Apply(ctx context.Context, ev payments.Event) (payments.Outcome, error)
}

// PaymentWebhook applies gateway capture and failure events.
func PaymentWebhook(svc PaymentService, secret string, guard webhookGuard, failures failureRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		body, err := readSigned(r, w, secret, PaymentSignatureHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var ev payments.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			reject(ctx, w, failures, logg, enums.WebhookSourcePayments, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment event"), body)
			return
		}
		eventID := strings.TrimSpace(ev.EventID)
		ctx = logg.WithFields(ctx, map[string]any{"event_id": eventID, "order_ref": ev.Payload.OrderRef})

		if seen(ctx, guard, logg, enums.WebhookSourcePayments, eventID) {
			responses.WriteSuccess(w, Ack{Status: ackDuplicate})
			return
		}

		outcome, err := svc.Apply(ctx, ev)
		if err != nil {
			forget(ctx, guard, logg, enums.WebhookSourcePayments, eventID)
			reject(ctx, w, failures, logg, enums.WebhookSourcePayments, eventID, err, body)
			return
		}
		logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "payment webhook processed")
		responses.WriteSuccess(w, Ack{Status: ackProcessed, Outcome: string(outcome)})
	}
}
