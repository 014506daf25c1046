package media

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Issuer 给媒体网关签发入房令牌。令牌与具体房间绑定，短时有效。
type Issuer struct {
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Issuer{apiKey: apiKey, apiSecret: []byte(apiSecret), ttl: ttl}
}

type roomClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// RoomToken 为 userID 签发可进入 roomID 媒体会话的 HS256 令牌。
func (i *Issuer) RoomToken(roomID, userID uint) (string, error) {
	now := time.Now().UTC()
	claims := roomClaims{
		Room: fmt.Sprintf("room-%d", roomID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign media token: %w", err)
	}
	return signed, nil
}
