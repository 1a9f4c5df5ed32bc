package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/scriptdeck/internal"
)

// Authenticator checks a username and credential against one identity
// source. It is chosen once at startup.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*internal.Identity, error)
}

// IdentityLoader reloads the current user and role for a token subject, so
// role changes and deactivation take effect on the next request.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, userID int64) (*internal.Identity, error)
}

// TokenGenerator creates and verifies access and refresh tokens.
type TokenGenerator interface {
	GenerateAccessToken(identity *internal.Identity) (string, error)
	GenerateRefreshToken(identity *internal.Identity) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)
