package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an admin session token stays valid.
const TokenTTL = 24 * time.Hour

// Tokens issues and verifies the bearer tokens the HTTP layer uses for
// admin sessions.
type Tokens struct {
	secret []byte
}

// NewTokens creates a token helper signing with the given secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Generate signs a token for the given user.
func (t *Tokens) Generate(user *User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"admin": user.Admin,
		"exp":   time.Now().Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses the token and reconstructs the user it was issued for.
func (t *Tokens) Verify(tokenString string) (*User, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	user := &User{}
	if sub, ok := claims["sub"].(string); ok {
		user.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if admin, ok := claims["admin"].(bool); ok {
		user.Admin = admin
	}
	return user, nil
}
