// Package auth issues and validates the access tokens handed out by the
// account service. Tokens are HS256-signed JWTs carrying the user ID.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/passkeyvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims embeds the registered JWT claims and adds the vault owner's ID.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// GenerateToken signs a new access token for userID valid for
// validityDuration.
func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken verifies the signature and expiry of tokenString and
// returns the user ID it was issued for. Expired tokens map to
// common.ErrTokenExpired so the transport layer can tell clients to refresh;
// everything else maps to common.ErrInvalidToken.
func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}
