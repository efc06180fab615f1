// Package auth wraps the Database Actor's session table
// (store.NewAuthKeyOp/VerifyAuthKeyOp) with an HMAC-signed session token:
// the 64-bit auth key the actor hands out is carried in the token's
// auth_key claim, so VerifySessionToken rejects a tampered token. The
// claims are signed, not encrypted: the key is readable by the client.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("auth: invalid session token")
	ErrInvalidPassword = errors.New("auth: invalid password")
)

// Claims is the payload signed into a session token. AuthKey carries the
// Database Actor's session id as a string since JWT numeric claims lose
// precision above 2^53 and the store hands out full 64-bit keys.
type Claims struct {
	AuthKey string `json:"auth_key"`
	jwt.RegisteredClaims
}

// Service issues and verifies session tokens. It holds no session state
// itself — the Database Actor's NewAuthKey/VerifyAuthKey pair remains the
// single source of truth on whether a session is still live; Service only
// decides whether a presented token is a signature match for one this
// process issued.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a Service signing tokens with secret, expiring after
// expiry (zero means tokens never expire, matching the teacher's
// JWTService when TokenExpiry is unset).
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// IssueSessionToken signs authKey — the value just returned by
// store.NewAuthKeyOp — into an opaque token suitable for returning to a
// client as POST /auth's session_token.
func (s *Service) IssueSessionToken(authKey uint64) (string, error) {
	claims := Claims{
		AuthKey: strconv.FormatUint(authKey, 10),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifySessionToken checks token's signature and expiry and extracts the
// auth key it carries. The caller must still confirm the key names a live
// session via store.VerifyAuthKeyOp — a signature match only proves this
// process minted the token, not that the session hasn't since been
// dropped.
func (s *Service) VerifySessionToken(token string) (uint64, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	key, err := strconv.ParseUint(claims.AuthKey, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return key, nil
}

// PasswordVerifier checks a login attempt against the stored user record.
// The comparison scheme itself is a non-core concern (spec.md names the
// password_hash field but not the hashing algorithm); apiserver takes one
// as a constructor argument so the choice of scheme never leaks into this
// package or the Database Actor.
type PasswordVerifier interface {
	Verify(storedHash, attempt string) bool
}
