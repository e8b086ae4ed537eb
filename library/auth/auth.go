// Package auth signs and verifies the bearer tokens that identify uploaders.
package auth

import (
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the caller of the quarantine API.
//
// Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	OrgID    string `json:"org_id"`
	Operator bool   `json:"operator,omitempty"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// JWT signs and parses HS256 tokens with a shared secret.
type JWT struct {
	secret []byte
	clock  func() time.Time
}

// New constructs a JWT helper.
func New(secret []byte) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	return &JWT{secret: secret, clock: time.Now}, nil
}

// Sign issues a token for userID in orgID that expires after ttl.
func (j *JWT) Sign(userID, orgID string, operator bool, ttl time.Duration) (string, error) {
	now := j.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		OrgID:    orgID,
		Operator: operator,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Parse verifies tokenString and returns its claims.
// Tokens without subject, org or expiry are rejected.
func (j *JWT) Parse(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenString), "Bearer "))
	if tokenString == "" {
		return nil, errors.WithStack(ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock),
	)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidToken, "parse token: %v", err)
	}
	if !token.Valid || claims.Subject == "" || claims.OrgID == "" {
		return nil, errors.WithStack(ErrInvalidToken)
	}
	return claims, nil
}
