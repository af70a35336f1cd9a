package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var testTokens = auth.NewTokens(config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60})

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	Auth(testTokens, nil)(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	valid, _, err := testTokens.Issue(auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	for _, header := range []string{"Bearer invalid", "Basic " + valid, valid, "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		resp := httptest.NewRecorder()
		Auth(testTokens, nil)(okHandler()).ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401 got %d", header, resp.Code)
		}
	}
}

func TestAuthSeedsActor(t *testing.T) {
	sellerID := uuid.New()
	token, _, err := testTokens.Issue(auth.Actor{ID: sellerID, Kind: enums.ActorKindSeller})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var captured auth.Actor
	handler := Auth(testTokens, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.ID != sellerID || !captured.IsSeller() {
		t.Fatalf("unexpected actor %+v", captured)
	}
}

func TestRequireActorKind(t *testing.T) {
	mw := RequireActorKind(nil, enums.ActorKindAdmin)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor got %d", resp.Code)
	}

	req = req.WithContext(WithActor(req.Context(), auth.Actor{ID: uuid.New(), Kind: enums.ActorKindBuyer}))
	resp = httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for buyer got %d", resp.Code)
	}

	req = req.WithContext(WithActor(req.Context(), auth.Actor{ID: uuid.New(), Kind: enums.ActorKindAdmin}))
	resp = httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}
