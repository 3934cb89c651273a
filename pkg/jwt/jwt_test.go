package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	_, err := NewManager("", time.Hour)
	assert.Error(t, err)

	m, err := NewManager("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, m.TTL())
}

func TestManager_GenerateAndValidate(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := m.Generate("user-123", "client")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "client", claims.Role)
	assert.Equal(t, "gateway", claims.Issuer)
}

func TestManager_GenerateEmptySubject(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = m.Generate("", "client")
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestManager_ValidateRejects(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewManager("different-secret", time.Hour)
		require.NoError(t, err)
		token, err := other.Generate("user-123", "client")
		require.NoError(t, err)

		_, err = m.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty subject claim", func(t *testing.T) {
		token := signed(t, m, Claims{
			RegisteredClaims: jwtlib.RegisteredClaims{
				ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		_, err := m.Validate(token)
		assert.ErrorIs(t, err, ErrEmptySubject)
	})

	t.Run("wrong signing method", func(t *testing.T) {
		token := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "user-123"})
		unsigned, err := token.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.Validate(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestManager_ValidateExpired(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	token := signed(t, m, Claims{
		Role: "client",
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

// signed builds a token with arbitrary claims under the manager's secret.
func signed(t *testing.T, m *Manager, claims Claims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	require.NoError(t, err)
	return token
}
