package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtKey is the secret used to sign tokens.
// In a production environment, this should be loaded from an environment variable or a secret manager.
var jwtKey = []byte("market_live_signing_secret_2026")

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for a specific user.
func GenerateToken(userID string, roles []string, tokenDuration time.Duration) (string, error) {
	expirationTime := time.Now().Add(tokenDuration)

	claims := &CustomClaims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "market-live",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
// The session registry calls it exactly once per connection attempt.
func ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}
