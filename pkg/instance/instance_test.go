package instance

import "testing"

func TestGetIDPrefersExplicitValue(t *testing.T) {
	t.Setenv("BAZAAR_INSTANCE_ID", "cron-a")
	t.Setenv("DYNO", "worker.1")
	if got := GetID(); got != "cron-a" {
		t.Fatalf("expected explicit id, got %q", got)
	}

	t.Setenv("BAZAAR_INSTANCE_ID", "")
	if got := GetID(); got != "worker.1" {
		t.Fatalf("expected dyno fallback, got %q", got)
	}
}
