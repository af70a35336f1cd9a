package instance

import (
	"os"
	"strings"
)

// GetID names this process in lock tokens and logs. The first non-blank of
// BAZAAR_INSTANCE_ID, DYNO and the hostname wins.
func GetID() string {
	for _, key := range []string{"BAZAAR_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "bazaar-0"
}
