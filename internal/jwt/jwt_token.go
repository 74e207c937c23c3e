package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrRoleDisabled = errors.New("no secret configured for role")

func appendRoleChar(token string, role Role) string {
	switch role {
	case RoleAdmin:
		return token + "a"
	}
	return token
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleAdmin:
		return "a"
	}
	return ""
}

func CreateToken(op Operator, role Role, validUntil int64) (TokenResponse, error) {
	secret, ok := roleSecret(role)
	if !ok {
		return TokenResponse{}, ErrRoleDisabled
	}

	if validUntil == 0 {
		validUntil = time.Now().Add(AdminTokenTTL).Unix()
	}

	claims := jwt.MapClaims{
		"id":  op.Id,
		"exp": validUntil,
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: appendRoleChar(tokenString, role),
		ExpiresAt:   validUntil,
	}, nil
}

// ParseToken validates the signature, expiry and role suffix of tokenString.
func ParseToken(tokenString string, role Role) (jwt.MapClaims, error) {
	if len(tokenString) == 0 {
		return nil, fmt.Errorf("token string is empty")
	}

	suffix := expectedRoleChar(role)
	if suffix == "" || tokenString[len(tokenString)-1:] != suffix {
		return nil, fmt.Errorf("invalid role character in token")
	}
	tokenString = tokenString[:len(tokenString)-1]

	secret, ok := roleSecret(role)
	if !ok {
		return nil, ErrRoleDisabled
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid - unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("claims of unauthorized type")
	}

	return claims, nil
}
