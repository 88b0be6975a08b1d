package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)

	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "subject-1",
		"email": "casey@example.com",
	})

	ident, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", ident.SubjectID)
	assert.Equal(t, "casey@example.com", ident.DisplayLabel)
}

func TestVerify_DisplayLabelFallbacks(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)

	t.Run("name when no email", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1", "name": "Casey"})
		ident, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "Casey", ident.DisplayLabel)
	})

	t.Run("email wins over name", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "s1", "name": "Casey", "email": "casey@example.com",
		})
		ident, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "casey@example.com", ident.DisplayLabel)
	})

	t.Run("anonymous when neither", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1"})
		ident, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, AnonymousLabel, ident.DisplayLabel)
	})
}

func TestVerify_IssuerAndAudience(t *testing.T) {
	ctx := context.Background()
	v := NewJWTVerifier(testSecret, nil).
		RequireIssuer("murmur-auth").
		RequireAudience("murmur-api")

	t.Run("matching claims pass", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "s1", "iss": "murmur-auth", "aud": "murmur-api",
		})
		ident, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "s1", ident.SubjectID)
	})

	t.Run("wrong issuer rejected", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "s1", "iss": "someone-else", "aud": "murmur-api",
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience rejected", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "s1", "iss": "murmur-auth", "aud": "other-api",
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing claims rejected when required", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1"})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("checks are skipped when unconfigured", func(t *testing.T) {
		plain := NewJWTVerifier(testSecret, nil).RequireIssuer("").RequireAudience("")
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1"})
		_, err := plain.Verify(ctx, token)
		assert.NoError(t, err)
	})
}

func TestVerify_RejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "some-other-secret", jwt.MapClaims{"sub": "s1"})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "s1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"email": "casey@example.com"})
		_, err := v.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(ctx, "not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerify_Revocation(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	v := NewJWTVerifier(testSecret, rdb)
	ctx := context.Background()

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1", "jti": "token-42"})

	// Not revoked yet.
	_, err := v.Verify(ctx, token)
	require.NoError(t, err)

	require.NoError(t, v.Revoke(ctx, "token-42", time.Hour))

	_, err = v.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrRevokedToken)

	// A token without a jti is unaffected by the revocation list.
	plain := signToken(t, testSecret, jwt.MapClaims{"sub": "s2"})
	_, err = v.Verify(ctx, plain)
	assert.NoError(t, err)
}

func TestVerify_RevocationCheckIsBestEffort(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	v := NewJWTVerifier(testSecret, rdb)

	token := signToken(t, testSecret, jwt.MapClaims{"sub": "s1", "jti": "token-1"})

	// With Redis down the check is skipped rather than locking everyone out.
	mr.Close()
	_, err := v.Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestRevoke_RequiresRedis(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)
	assert.Error(t, v.Revoke(context.Background(), "token-1", time.Hour))
}
