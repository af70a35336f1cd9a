package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Actor is the typed caller identity threaded explicitly into every engine call.
type Actor struct {
	ID   uuid.UUID
	Kind enums.ActorKind
}

// SystemActor identifies webhooks and background jobs.
var SystemActor = Actor{Kind: enums.ActorKindSystem}

func (a Actor) IsBuyer() bool  { return a.Kind == enums.ActorKindBuyer }
func (a Actor) IsSeller() bool { return a.Kind == enums.ActorKindSeller }
func (a Actor) IsAdmin() bool  { return a.Kind == enums.ActorKindAdmin }
func (a Actor) IsSystem() bool { return a.Kind == enums.ActorKindSystem }

// Owns reports whether the actor is the given principal acting in the given role.
func (a Actor) Owns(kind enums.ActorKind, id uuid.UUID) bool {
	return a.Kind == kind && a.ID != uuid.Nil && a.ID == id
}

// canHoldToken is false for the system actor; it never authenticates over HTTP.
func (a Actor) canHoldToken() bool {
	return a.ID != uuid.Nil && a.Kind.IsValid() && a.Kind != enums.ActorKindSystem
}

// AccessTokenClaims carry the actor id in sub and its role in actor_kind.
type AccessTokenClaims struct {
	Kind enums.ActorKind `json:"actor_kind"`
	jwt.RegisteredClaims
}
