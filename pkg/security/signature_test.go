package security_test

import (
	"errors"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/security"
)

func TestSignAndVerify(t *testing.T) {
	body := []byte(`{"event_id":"evt_1"}`)
	sig := security.SignPayload("topsecret", body)
	if len(sig) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(sig))
	}
	if err := security.VerifySignature("topsecret", body, sig); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := security.VerifySignature("topsecret", body, "sha256="+sig); err != nil {
		t.Fatalf("prefixed signature rejected: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"amount":100}`)
	sig := security.SignPayload("topsecret", body)

	cases := map[string]error{
		"other body":   security.VerifySignature("topsecret", []byte(`{"amount":101}`), sig),
		"other secret": security.VerifySignature("different", body, sig),
		"empty":        security.VerifySignature("topsecret", body, ""),
		"not hex":      security.VerifySignature("topsecret", body, "zz"),
	}
	for name, err := range cases {
		if !errors.Is(err, security.ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
	if err := security.VerifySignature("", body, sig); err == nil {
		t.Fatal("expected error without a secret")
	}
}
