package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/shipping"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const CarrierSignatureHeader = "X-Carrier-Signature"

type TrackingService interface {
	Apply(ctx context.Context, update shipping.TrackingUpdate) (shipping.Outcome, error)
}

// CarrierWebhook records tracking updates and advances units by AWB.
func CarrierWebhook(svc TrackingService, secret string, guard webhookGuard, failures failureRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}

		body, err := readSigned(r, w, secret, CarrierSignatureHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var update shipping.TrackingUpdate
		if err := json.Unmarshal(body, &update); err != nil {
			reject(ctx, w, failures, logg, enums.WebhookSourceCarrier, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode tracking update"), body)
			return
		}
		// carriers send no delivery id; the natural key of the event stands in
		eventID := trackingKey(update)
		ctx = logg.WithFields(ctx, map[string]any{"awb": update.AWBNumber, "carrier_status": update.Status})

		if seen(ctx, guard, logg, enums.WebhookSourceCarrier, eventID) {
			responses.WriteSuccess(w, Ack{Status: ackDuplicate})
			return
		}

		outcome, err := svc.Apply(ctx, update)
		if err != nil {
			forget(ctx, guard, logg, enums.WebhookSourceCarrier, eventID)
			reject(ctx, w, failures, logg, enums.WebhookSourceCarrier, eventID, err, body)
			return
		}
		logg.Info(logg.WithField(ctx, "outcome", string(outcome)), "tracking webhook processed")
		responses.WriteSuccess(w, Ack{Status: ackProcessed, Outcome: string(outcome)})
	}
}

func trackingKey(update shipping.TrackingUpdate) string {
	awb := strings.TrimSpace(update.AWBNumber)
	if awb == "" || update.Timestamp.IsZero() {
		return ""
	}
	return awb + ":" + strings.ToUpper(strings.TrimSpace(update.Status)) + ":" + update.Timestamp.UTC().Format(time.RFC3339Nano)
}
