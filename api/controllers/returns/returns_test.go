package returns

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/refunds"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type stubReturns struct {
	created    returns.CreateInput
	transition returns.TransitionInput
	listed     pagination.Params
	err        error
}

func (s *stubReturns) Create(_ context.Context, _ auth.Actor, in returns.CreateInput) (*models.ReturnRequest, error) {
	s.created = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReturnRequest{ID: uuid.New(), ReturnNumber: "RET-2026-000001", UnitID: in.UnitID, Reason: in.Reason, Status: enums.ReturnStatusRequested}, nil
}

func (s *stubReturns) Transition(_ context.Context, _ auth.Actor, id uuid.UUID, in returns.TransitionInput) (*models.ReturnRequest, error) {
	s.transition = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReturnRequest{ID: id, Status: in.To}, nil
}

func (s *stubReturns) Get(_ context.Context, _ auth.Actor, id uuid.UUID) (*models.ReturnRequest, error) {
	return &models.ReturnRequest{ID: id}, s.err
}

func (s *stubReturns) List(_ context.Context, _ auth.Actor, params pagination.Params) ([]models.ReturnRequest, string, error) {
	s.listed = params
	return []models.ReturnRequest{{ID: uuid.New()}}, "", s.err
}

type stubRefunds struct {
	created   refunds.CreateInput
	processed bool
	err       error
}

func (s *stubRefunds) Create(_ context.Context, _ auth.Actor, in refunds.CreateInput) (*models.Refund, error) {
	s.created = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.Refund{ID: uuid.New(), ReturnID: in.ReturnID, AmountPaise: in.AmountPaise, Status: enums.RefundStatusPending}, nil
}

func (s *stubRefunds) Transition(_ context.Context, _ auth.Actor, id uuid.UUID, in refunds.TransitionInput) (*models.Refund, error) {
	return &models.Refund{ID: id, Status: in.To}, s.err
}

func (s *stubRefunds) Process(_ context.Context, _ auth.Actor, id uuid.UUID) (*models.Refund, error) {
	s.processed = true
	if s.err != nil {
		return nil, s.err
	}
	return &models.Refund{ID: id, Status: enums.RefundStatusCompleted, Attempts: 1}, nil
}

func (s *stubRefunds) Get(_ context.Context, _ auth.Actor, id uuid.UUID) (*models.Refund, error) {
	return &models.Refund{ID: id}, s.err
}

func actorRequest(method, body string, kind enums.ActorKind, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithActor(ctx, auth.Actor{ID: uuid.New(), Kind: kind})
	return req.WithContext(ctx)
}

func TestCreateReturn(t *testing.T) {
	svc := &stubReturns{}
	unitID := uuid.New()
	itemID := uuid.New()
	body := `{"unit_id":"` + unitID.String() + `","reason":"  wrong size  ","items":[{"fulfillment_item_id":"` + itemID.String() + `","quantity":1}]}`

	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, actorRequest(http.MethodPost, body, enums.ActorKindBuyer, nil))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, unitID, svc.created.UnitID)
	require.Equal(t, "wrong size", svc.created.Reason)
	require.Len(t, svc.created.Items, 1)
	require.Contains(t, resp.Body.String(), `"return_number":"RET-2026-000001"`)
}

func TestCreateReturnValidatesItems(t *testing.T) {
	svc := &stubReturns{}
	body := `{"unit_id":"` + uuid.NewString() + `","reason":"damaged","items":[]}`

	resp := httptest.NewRecorder()
	Create(svc, nil)(resp, actorRequest(http.MethodPost, body, enums.ActorKindBuyer, nil))

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, uuid.Nil, svc.created.UnitID)
}

func TestTransitionReturnNormalizesStatus(t *testing.T) {
	svc := &stubReturns{}
	params := map[string]string{"returnId": uuid.NewString()}

	resp := httptest.NewRecorder()
	Transition(svc, nil)(resp, actorRequest(http.MethodPost, `{"status":"approved"}`, enums.ActorKindSeller, params))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, enums.ReturnStatusApproved, svc.transition.To)

	resp = httptest.NewRecorder()
	Transition(svc, nil)(resp, actorRequest(http.MethodPost, `{"status":"LOST"}`, enums.ActorKindSeller, params))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTransitionReturnSurfacesForbidden(t *testing.T) {
	svc := &stubReturns{err: pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can approve")}
	params := map[string]string{"returnId": uuid.NewString()}

	resp := httptest.NewRecorder()
	Transition(svc, nil)(resp, actorRequest(http.MethodPost, `{"status":"APPROVED"}`, enums.ActorKindBuyer, params))
	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListReturns(t *testing.T) {
	svc := &stubReturns{}
	resp := httptest.NewRecorder()
	List(svc, nil)(resp, actorRequest(http.MethodGet, "", enums.ActorKindBuyer, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, pagination.DefaultLimit, svc.listed.Limit)
	require.Contains(t, resp.Body.String(), `"returns":[`)
	require.NotContains(t, resp.Body.String(), "next_cursor")
}

func TestCreateRefund(t *testing.T) {
	svc := &stubRefunds{}
	returnID := uuid.New()

	resp := httptest.NewRecorder()
	CreateRefund(svc, nil)(resp, actorRequest(http.MethodPost, `{"return_id":"`+returnID.String()+`","amount":59000}`, enums.ActorKindAdmin, nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, int64(59000), svc.created.AmountPaise)
	require.Contains(t, resp.Body.String(), `"amount":59000`)

	resp = httptest.NewRecorder()
	CreateRefund(svc, nil)(resp, actorRequest(http.MethodPost, `{"return_id":"`+returnID.String()+`","amount":0}`, enums.ActorKindAdmin, nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProcessRefund(t *testing.T) {
	svc := &stubRefunds{}
	params := map[string]string{"refundId": uuid.NewString()}

	resp := httptest.NewRecorder()
	ProcessRefund(svc, nil)(resp, actorRequest(http.MethodPost, "", enums.ActorKindAdmin, params))
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, svc.processed)
	require.Contains(t, resp.Body.String(), `"status":"COMPLETED"`)

	svc = &stubRefunds{err: pkgerrors.Transition("COMPLETED", "PROCESSING")}
	resp = httptest.NewRecorder()
	ProcessRefund(svc, nil)(resp, actorRequest(http.MethodPost, "", enums.ActorKindAdmin, params))
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestTransitionRefundRejectsUnknownStatus(t *testing.T) {
	params := map[string]string{"refundId": uuid.NewString()}
	resp := httptest.NewRecorder()
	TransitionRefund(&stubRefunds{}, nil)(resp, actorRequest(http.MethodPost, `{"status":"SETTLED"}`, enums.ActorKindAdmin, params))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
