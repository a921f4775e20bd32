package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// passwordCost is the bcrypt work factor. The cost and salt are embedded in
// every hash, so raising it later does not break existing users.
const passwordCost = 10

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), passwordCost)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// TokenIssuer signs and verifies HS256 access tokens with a process-wide secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

// Issue mints a token for u that expires after the issuer's TTL.
func (t *TokenIssuer) Issue(u *User) (string, error) {
	return t.IssueWithTTL(Claims{UserID: u.ID, Name: u.Name, Email: u.Email}, t.ttl)
}

// IssueWithTTL stamps iat/exp onto c and signs it.
func (t *TokenIssuer) IssueWithTTL(c Claims, ttl time.Duration) (string, error) {
	now := t.now().Truncate(time.Second)
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(t.secret)
}

// Verify recovers the claims from token. The signature is checked over the
// raw segments before the payload is decoded, so any altered byte in the
// header or payload reports ErrTokenInvalidSignature rather than a parse error.
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrTokenMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	sig, err := parser.DecodeSegment(parts[2])
	if err != nil {
		// non-canonical padding bits decode leniently to a real signature
		if _, lerr := base64.RawURLEncoding.DecodeString(parts[2]); lerr == nil {
			return nil, ErrTokenInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, t.secret); err != nil {
		return nil, ErrTokenInvalidSignature
	}

	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}); err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	return claims, nil
}
