// Package auth issues and checks the API's JWT tokens and the operator
// password.
package auth

import "github.com/golang-jwt/jwt/v5"

// TokenType tells access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess authorizes API calls.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is exchanged for a new pair.
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the JWT claims of an operator token.
type Claims struct {
	jwt.RegisteredClaims

	Username  string    `json:"username"`
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}
