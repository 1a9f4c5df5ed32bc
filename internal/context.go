package internal

import "context"

type ctxKey string

const ContextIdentityKey ctxKey = "identity"

// Identity is the authenticated caller as seen by the core: who they are and
// which role they act under.
type Identity struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	RoleID    string `json:"role"`
	RoleLevel int    `json:"role_level"`
}

// IsAdmin reports whether the identity holds the most privileged level.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.RoleLevel == 0
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(ContextIdentityKey).(*Identity)
	return id, ok && id != nil
}

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, id)
}
