package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 运维角色
const (
	RoleOperator = 1 // 可查询、对账
	RoleAdmin    = 2 // 可手动修复订单
)

const issuer = "paycenter"

// Claims 运维人员 JWT Claims
type Claims struct {
	Operator string `json:"operator"`
	Role     int    `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken 生成JWT Token
func GenerateToken(operator string, role int, secret string, ttl time.Duration) (string, *time.Time, error) {
	if secret == "" {
		return "", nil, errors.New("jwt secret is empty")
	}
	now := time.Now()
	expireTime := now.Add(ttl)

	claims := Claims{
		Operator: operator,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expireTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := tokenClaims.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return token, &expireTime, nil
}

// ParseToken 验证JWT Token
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
