package enums

import (
	"fmt"
	"strings"
)

// ActorKind identifies who is driving an engine call.
type ActorKind string

const (
	ActorKindBuyer  ActorKind = "buyer"
	ActorKindSeller ActorKind = "seller"
	ActorKindAdmin  ActorKind = "admin"
	// ActorKindSystem is used by webhooks and background jobs; it is never minted into a token.
	ActorKindSystem ActorKind = "system"
)

var validActorKinds = []ActorKind{
	ActorKindBuyer,
	ActorKindSeller,
	ActorKindAdmin,
	ActorKindSystem,
}

// String implements fmt.Stringer.
func (a ActorKind) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorKind.
func (a ActorKind) IsValid() bool {
	for _, candidate := range validActorKinds {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorKind converts raw input (case-insensitive) into an ActorKind.
func ParseActorKind(value string) (ActorKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActorKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor kind %q", value)
}
