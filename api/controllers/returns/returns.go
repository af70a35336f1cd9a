package returns

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

const maxReasonLength = 500

type ReturnService interface {
	Create(ctx context.Context, actor auth.Actor, in returns.CreateInput) (*models.ReturnRequest, error)
	Transition(ctx context.Context, actor auth.Actor, returnID uuid.UUID, in returns.TransitionInput) (*models.ReturnRequest, error)
	Get(ctx context.Context, actor auth.Actor, returnID uuid.UUID) (*models.ReturnRequest, error)
	List(ctx context.Context, actor auth.Actor, params pagination.Params) ([]models.ReturnRequest, string, error)
}

// Create opens a return against a delivered unit.
func Create(svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload returns.CreateInput
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Reason = validators.SanitizeString(payload.Reason, maxReasonLength)

		req, err := svc.Create(r.Context(), actor, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(req))
	}
}

func List(svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.Page(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reqs, next, err := svc.List(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := ReturnListResponse{Returns: make([]ReturnResponse, 0, len(reqs)), NextCursor: next}
		for i := range reqs {
			out.Returns = append(out.Returns, newReturnResponse(&reqs[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func Get(svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnID, err := validators.PathID(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), actor, returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReturnResponse(req))
	}
}

// Transition moves a return along its lifecycle; REJECTED requires a reason.
func Transition(svc ReturnService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequestActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnID, err := validators.PathID(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload returns.TransitionInput
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.To = enums.ReturnStatus(strings.ToUpper(strings.TrimSpace(string(payload.To))))
		if !payload.To.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown return status %q", payload.To))
			return
		}
		payload.Reason = validators.SanitizeString(payload.Reason, maxReasonLength)

		req, err := svc.Transition(r.Context(), actor, returnID, payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReturnResponse(req))
	}
}
