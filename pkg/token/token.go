// Package token issues and validates the bearer tokens that bind a
// request to an ASN whose control was already proven by a verify call.
// Tokens are signed with a single symmetric secret; there is no
// identity provider in this system, the service is its own issuer.
package token

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/autopeerd/autopeerd/pkg/errors"
)

// defaultTTL is the token lifetime.
const defaultTTL = 7 * 24 * time.Hour

// asnClaim is the JWT claim name carrying the proven ASN.
const asnClaim = "asn"

// Service issues and validates bearer tokens signed with a single
// symmetric secret loaded from process configuration.
type Service struct {
	secret []byte
	ttl    time.Duration
}

// New constructs a Service. secret must be non-empty; it is the same
// value pkg/config requires under JWT_SECRET.
func New(secret string) *Service {
	return &Service{secret: []byte(secret), ttl: defaultTTL}
}

// Issue returns a signed bearer token encoding asn and an expiry ttl from
// now.
func (s *Service) Issue(asn uint32) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		asnClaim: asn,
		"iat":    jwt.NewNumericDate(now),
		"exp":    jwt.NewNumericDate(now.Add(s.ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", errors.NewInternalError("signing token", err)
	}
	return signed, nil
}

// Validate checks tok's signature and expiry and returns the ASN it
// encodes. Validation is stateless: there is no server-side revocation
// list, so a token remains valid until it expires no matter what
// happens to the record it was issued for.
func (s *Service) Validate(tok string) (uint32, error) {
	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return 0, errors.NewUnauthorizedError("token expired", err)
		}
		return 0, errors.NewUnauthorizedError("invalid token", err)
	}
	if !parsed.Valid {
		return 0, errors.NewUnauthorizedError("invalid token", nil)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.NewUnauthorizedError("invalid token claims", nil)
	}
	asnValue, ok := claims[asnClaim]
	if !ok {
		return 0, errors.NewUnauthorizedError("token missing asn claim", nil)
	}
	asnFloat, ok := asnValue.(float64)
	if !ok {
		return 0, errors.NewUnauthorizedError("token asn claim has wrong type", nil)
	}
	return uint32(asnFloat), nil
}
