package media_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wi1ex/mafia-sub000/internal/media"
)

func TestIssuer_RoomToken(t *testing.T) {
	issuer := media.NewIssuer("api-key", "api-secret", 10*time.Minute)

	signed, err := issuer.RoomToken(7, 42)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	// 媒体网关侧的验证视角
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		assert.Equal(t, "HS256", token.Method.Alg())
		return []byte("api-secret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "api-key", claims["iss"])
	assert.Equal(t, "42", claims["sub"])
	assert.Equal(t, "room-7", claims["room"])
	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	assert.Greater(t, int64(exp), time.Now().Unix())
}

func TestIssuer_RoomToken_WrongSecretRejected(t *testing.T) {
	issuer := media.NewIssuer("api-key", "api-secret", time.Minute)

	signed, err := issuer.RoomToken(7, 42)
	require.NoError(t, err)

	_, err = jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte("another-secret"), nil
	})
	assert.Error(t, err)
}
