package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/pkg/config"

	"github.com/golang-jwt/jwt/v4"
)

var cfg *config.JWTConfig

// Initialize sets the JWT configuration for the package. Must be called
// once at startup before any token operation. The signing key is a
// process-wide, read-only-after-init resource; rotating it invalidates
// every outstanding session.
func Initialize(jwtConfig *config.JWTConfig) {
	cfg = jwtConfig
}

// SessionClaims represents the JWT claims embedded in a session token.
type SessionClaims struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	CompanyAlias string `json:"companyAlias"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a session token for the user with the configured
// expiry (default 24h).
func GenerateToken(user *model.User) (string, error) {
	if cfg == nil {
		return "", errors.New("JWT configuration not initialized")
	}

	claims := SessionClaims{
		UserID:       user.ID,
		Username:     user.Username,
		CompanyAlias: user.CompanyAlias,
		Role:         string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.SigningKey))
}

// ValidateToken validates and parses a session token. Expiry is reported
// as a distinct TokenExpired error so clients can refresh instead of
// re-authenticating; every other failure is Unauthenticated.
func ValidateToken(tokenString string) (*SessionClaims, error) {
	if cfg == nil {
		return nil, errors.New("JWT configuration not initialized")
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.SigningKey), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &apperr.Error{Kind: apperr.TokenExpired, Msg: "token expired", Err: err}
		}
		return nil, &apperr.Error{Kind: apperr.Unauthenticated, Msg: "invalid token", Err: err}
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, &apperr.Error{Kind: apperr.Unauthenticated, Msg: "invalid token", Err: jwt.ErrSignatureInvalid}
}
