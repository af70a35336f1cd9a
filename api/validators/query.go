package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// PathID reads a chi route parameter as a UUID.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, fieldError(name, "path parameter required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(name, "must be a UUID")
	}
	return id, nil
}

// Page reads ?limit= and ?cursor=. Malformed cursors fail here with a 400
// instead of reaching the repositories.
func Page(r *http.Request) (pagination.Params, error) {
	q := r.URL.Query()
	params := pagination.Params{Limit: pagination.DefaultLimit, Cursor: strings.TrimSpace(q.Get("cursor"))}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > pagination.MaxLimit {
			return pagination.Params{}, fieldError("limit", "must be between 1 and "+strconv.Itoa(pagination.MaxLimit))
		}
		params.Limit = limit
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Params{}, err
	}
	return params, nil
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: msg})
}
