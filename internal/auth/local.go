package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/scriptdeck/internal"
	userDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/user"
)

// CredentialStore returns (nil, nil) for an unknown username.
type CredentialStore interface {
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
}

// LocalAuthenticator verifies bcrypt hashes held in the users table.
type LocalAuthenticator struct {
	users      CredentialStore
	identities IdentityLoader
	logger     *slog.Logger
}

func NewLocalAuthenticator(users CredentialStore, identities IdentityLoader, logger *slog.Logger) *LocalAuthenticator {
	return &LocalAuthenticator{users: users, identities: identities, logger: logger}
}

func (a *LocalAuthenticator) Authenticate(ctx context.Context, username, password string) (*internal.Identity, error) {
	u, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if u == nil {
		// keep timing close to the known-user path
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		a.logger.Warn("login for unknown user", "username", username)
		return nil, internal.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		a.logger.Warn("login with wrong password", "username", username)
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}
	return a.identities.LoadIdentity(ctx, u.ID)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("scriptdeck"), bcrypt.MinCost)

// HashPassword hashes with the configured cost, falling back to the bcrypt
// default when cost is out of range.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
