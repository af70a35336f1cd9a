package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

const (
	defaultTokenTTL = time.Hour
	// clockLeeway absorbs skew between the identity provider and this service.
	clockLeeway = 30 * time.Second
)

var signingMethod = jwt.SigningMethodHS256

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid access token")

// Tokens issues and verifies HS256 access tokens. Buyers, sellers and admins
// authenticate with them; the system actor never does.
type Tokens struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokens(cfg config.JWTConfig) *Tokens {
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Tokens{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue signs a token for actor and returns it with its expiry.
func (t *Tokens) Issue(actor Actor) (string, time.Time, error) {
	if len(t.secret) == 0 || t.issuer == "" {
		return "", time.Time{}, errors.New("jwt secret and issuer are required")
	}
	if !actor.canHoldToken() {
		return "", time.Time{}, fmt.Errorf("actor %q cannot hold an access token", actor.Kind)
	}
	now := t.now().UTC().Truncate(time.Second)
	expires := now.Add(t.ttl)
	claims := AccessTokenClaims{
		Kind: actor.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, issuer, audience and lifetime, then returns the actor.
func (t *Tokens) Verify(raw string) (Actor, error) {
	if len(t.secret) == 0 {
		return Actor{}, fmt.Errorf("%w: verifier has no secret", ErrInvalidToken)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithLeeway(clockLeeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	var claims AccessTokenClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, opts...); err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject is not an actor id", ErrInvalidToken)
	}
	actor := Actor{ID: id, Kind: claims.Kind}
	if !actor.canHoldToken() {
		return Actor{}, fmt.Errorf("%w: actor kind %q not allowed", ErrInvalidToken, claims.Kind)
	}
	return actor, nil
}
