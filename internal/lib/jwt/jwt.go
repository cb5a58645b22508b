package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrMalformedToken = errors.New("malformed token")
)

// Claim is a verified session claim: the identity it asserts plus the
// issuance id used for revocation and the instant the claim expires.
type Claim struct {
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// NewToken signs a session claim binding subject = username. Every claim
// carries an expiry and a unique issuance id.
func NewToken(username, secret string, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseToken verifies the signature and expiry of a presented token and
// returns the bound claim. ErrMalformedToken means the input is not a
// token at all; ErrInvalidToken covers bad signatures and expired claims.
func ParseToken(tokenStr, secret string) (Claim, error) {
	const op = "jwt.ParseToken"

	claims := &jwt.RegisteredClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Claim{}, fmt.Errorf("%s: %w", op, ErrMalformedToken)
		}
		return Claim{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !parsedToken.Valid {
		return Claim{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return Claim{}, fmt.Errorf("%s: %w", op, ErrMalformedToken)
	}

	return Claim{
		Username:  claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
