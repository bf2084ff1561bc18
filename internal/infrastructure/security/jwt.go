// Package security provides JWT token utilities for the admin API.
package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// AdminTokenTTL bounds how long an issued admin token stays valid.
const AdminTokenTTL = 12 * time.Hour

// ValidateAdminJWT validates an admin token and returns its claims.
func ValidateAdminJWT(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateAdminToken creates a signed admin session token.
func GenerateAdminToken(secret string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(AdminTokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
