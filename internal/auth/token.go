package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload the auth service signs into session tokens.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier validates session tokens issued by the auth service. Token
// issuance lives there; the chat core only checks signatures.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier with the shared HS256 secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ValidateToken parses the token and returns the authenticated user id.
func (v *Verifier) ValidateToken(tokenString string) (int, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
