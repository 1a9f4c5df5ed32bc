package auth

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/scriptdeck/internal"
)

// Service issues tokens for authenticated callers and turns bearer tokens
// back into a current identity.
type Service struct {
	authenticator  Authenticator
	identities     IdentityLoader
	tokenGenerator TokenGenerator
	accessTTLSecs  int64
	logger         *slog.Logger
}

func NewService(authenticator Authenticator, identities IdentityLoader, tokenGen TokenGenerator, logger *slog.Logger) *Service {
	s := &Service{
		authenticator:  authenticator,
		identities:     identities,
		tokenGenerator: tokenGen,
		logger:         logger,
	}
	if jwtGen, ok := tokenGen.(*JWTTokenGenerator); ok {
		s.accessTTLSecs = int64(jwtGen.AccessTokenTTL.Seconds())
	}
	return s
}

// Login validates credentials and returns a token pair.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	identity, err := s.authenticator.Authenticate(ctx, dto.Username, dto.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", identity.UserID, "role", identity.RoleID)
	return s.issue(identity)
}

// Refresh exchanges a refresh token for a new pair. The identity is reloaded
// so a deactivated user cannot keep refreshing.
func (s *Service) Refresh(ctx context.Context, dto RefreshTokenDTO) (*AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.tokenGenerator.ValidateRefreshToken(dto.RefreshToken)
	if err != nil {
		return nil, err
	}

	identity, err := s.identities.LoadIdentity(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.issue(identity)
}

// Authenticate resolves an access token to the caller's current identity.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*internal.Identity, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	return s.identities.LoadIdentity(ctx, claims.UserID)
}

func (s *Service) issue(identity *internal.Identity) (*AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(identity)
	if err != nil {
		return nil, internal.NewInternalError("failed to generate access token", err)
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(identity)
	if err != nil {
		return nil, internal.NewInternalError("failed to generate refresh token", err)
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTLSecs,
	}, nil
}
