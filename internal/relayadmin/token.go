// ABOUTME: JWT token verification for the relay's admin HTTP surface
// ABOUTME: HS256 signed, with the "sub" claim checked against the approved-principal store on every call

package relayadmin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token and principal errors.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrMissingClaim     = errors.New("missing required claim")
	ErrPrincipalUnknown = errors.New("relayadmin: unknown admin principal")
	ErrPrincipalRevoked = errors.New("relayadmin: admin principal revoked")
)

// PrincipalStore is the subset of adminstore.Store the verifier consults
// to turn a bare JWT subject into an admission decision: a token can be
// cryptographically valid and still belong to a principal whose access was
// pulled after it was issued. Implemented by internal/adminstore.
type PrincipalStore interface {
	// GetPrincipalStatus returns the stored status ("approved" or
	// "revoked") for principalID, or ErrPrincipalUnknown if no such
	// principal was ever approved.
	GetPrincipalStatus(ctx context.Context, principalID string) (status string, err error)
	TouchLastSeen(ctx context.Context, principalID string, at time.Time) error
}

// TokenVerifier defines the interface for token verification.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (principalID string, err error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs. It guards
// the relay's admin surface — triggering an out-of-cycle prune or
// checkpoint — which is otherwise driven entirely by the retention loop's
// own timers. A valid signature only proves the token was minted by
// someone holding secret; principals is what lets an operator actually
// revoke access before a token's exp.
type JWTVerifier struct {
	secret     []byte
	principals PrincipalStore
}

// NewJWTVerifier creates a verifier for the given HMAC secret. principals
// may be nil, in which case Verify trusts the "sub" claim outright — useful
// for tests and for relays run without the admin side-store configured.
func NewJWTVerifier(secret []byte, principals PrincipalStore) *JWTVerifier {
	return &JWTVerifier{secret: secret, principals: principals}
}

// Verify validates the token's signature and expiry, extracts the "sub"
// claim, and — when a PrincipalStore is configured — rejects subjects that
// are unknown or revoked.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	if v.principals == nil {
		return sub, nil
	}

	status, err := v.principals.GetPrincipalStatus(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrPrincipalUnknown) {
			return "", ErrPrincipalUnknown
		}
		return "", fmt.Errorf("looking up admin principal: %w", err)
	}
	if status != "approved" {
		return "", ErrPrincipalRevoked
	}

	if err := v.principals.TouchLastSeen(ctx, sub, time.Now()); err != nil {
		// Missing a last-seen stamp never blocks the request it belongs to.
		return sub, nil
	}

	return sub, nil
}

// Generate creates a new JWT token for the given principal ID with expiration.
func (v *JWTVerifier) Generate(principalID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": principalID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
