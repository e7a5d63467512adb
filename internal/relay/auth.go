package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "intake-receiver"
	tokenAudience = "intake-worker"
	tokenLeeway   = 30 * time.Second
)

// Authenticator mints and verifies the per-request HS256 tokens. The
// subject is bound to the command so a token cannot be replayed against a
// different one.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("relay secret is empty")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint returns a signed token for one request.
func (a *Authenticator) Mint(command, requestID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		Subject:   command,
		ID:        requestID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing relay token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience, expiry and that the subject
// names command.
func (a *Authenticator) Verify(token, command string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return a.secret, nil
	},
		jwt.WithLeeway(tokenLeeway),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithSubject(command),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("relay token is not valid")
	}
	return claims, nil
}
