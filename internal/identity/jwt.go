package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// Verification failures. All of them map to 401 at the HTTP layer; they are
// distinguished for logging only.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("token has been revoked")
)

// JWTVerifier validates HMAC-signed bearer tokens and checks their jti
// against a Redis revocation list. The Redis client is optional; without it
// revocation checks are skipped.
type JWTVerifier struct {
	secret     []byte
	rdb        *redis.Client
	parserOpts []jwt.ParserOption
}

// NewJWTVerifier creates a verifier for tokens signed with the given secret.
func NewJWTVerifier(secret string, rdb *redis.Client) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), rdb: rdb}
}

// RequireIssuer makes Verify reject tokens whose iss claim is missing or
// differs from iss. Empty disables the check.
func (v *JWTVerifier) RequireIssuer(iss string) *JWTVerifier {
	if iss != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithIssuer(iss))
	}
	return v
}

// RequireAudience makes Verify reject tokens whose aud claim does not
// contain aud. Empty disables the check.
func (v *JWTVerifier) RequireAudience(aud string) *JWTVerifier {
	if aud != "" {
		v.parserOpts = append(v.parserOpts, jwt.WithAudience(aud))
	}
	return v
}

// Verify parses and validates a token, extracts the subject and display
// claims, and rejects tokens on the revocation list.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, v.parserOpts...)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	// Extract subject claim (RFC 7519 "sub")
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, ErrInvalidToken
	}

	if jti, ok := claims["jti"].(string); ok && jti != "" {
		if err := v.checkRevocation(ctx, jti); err != nil {
			return Identity{}, err
		}
	}

	return Identity{
		SubjectID:    sub,
		DisplayLabel: displayLabel(claims),
	}, nil
}

// Revoke puts a token's jti on the revocation list. Callers pass the token's
// remaining lifetime so entries expire on their own.
func (v *JWTVerifier) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if v.rdb == nil {
		return fmt.Errorf("revocation requires a redis client")
	}
	return v.rdb.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

func (v *JWTVerifier) checkRevocation(ctx context.Context, jti string) error {
	if v.rdb == nil {
		return nil
	}
	exists, err := v.rdb.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		// Revocation is best-effort; a Redis outage should not lock
		// every caller out.
		return nil
	}
	if exists > 0 {
		return ErrRevokedToken
	}
	return nil
}

func revocationKey(jti string) string {
	return "revoked:jwt:" + jti
}

// displayLabel prefers the email claim, then name, and falls back to
// AnonymousLabel when neither is present.
func displayLabel(claims jwt.MapClaims) string {
	if email, ok := claims["email"].(string); ok && email != "" {
		return email
	}
	if name, ok := claims["name"].(string); ok && name != "" {
		return name
	}
	return AnonymousLabel
}
