package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestToken(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		token, exp, err := GenerateToken("ops@paycenter", RoleAdmin, testSecret, time.Hour)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), *exp, time.Second)

		claims, err := ParseToken(token, testSecret)
		require.NoError(t, err)
		assert.Equal(t, "ops@paycenter", claims.Operator)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		token, _, err := GenerateToken("ops", RoleOperator, testSecret, time.Hour)
		require.NoError(t, err)

		_, err = ParseToken(token, "another-secret-another-secret-xx")
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("Expired", func(t *testing.T) {
		token, _, err := GenerateToken("ops", RoleOperator, testSecret, -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken(token, testSecret)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("Empty secret", func(t *testing.T) {
		_, _, err := GenerateToken("ops", RoleOperator, "", time.Hour)
		assert.Error(t, err)
	})
}
