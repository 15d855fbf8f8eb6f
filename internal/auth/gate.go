package auth

import (
	"context"
	"errors"

	"github.com/spec-kit/support-bot/internal/platform"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Gate guards staff actions behind the management role.
type Gate struct {
	identity platform.IdentitySource
	roleID   string
}

// NewGate builds a gate for roleID.
func NewGate(identity platform.IdentitySource, roleID string) *Gate {
	return &Gate{identity: identity, roleID: roleID}
}

// Require fails with PERMISSION_DENIED unless userID holds the management role in guildID.
func (g *Gate) Require(ctx context.Context, guildID, userID string) error {
	if guildID == "" || userID == "" {
		return apperrors.NewPermissionDenied("Nie masz uprawnień.")
	}
	ok, err := g.identity.HasRole(ctx, guildID, userID, g.roleID)
	if errors.Is(err, platform.ErrNotFound) {
		return apperrors.NewPermissionDenied("Nie masz uprawnień.")
	}
	if err != nil {
		return apperrors.NewPlatformTransient("Nie udało się sprawdzić uprawnień.", err)
	}
	if !ok {
		return apperrors.NewPermissionDenied("Nie masz uprawnień.")
	}
	return nil
}

// RoleID returns the guarded role.
func (g *Gate) RoleID() string {
	return g.roleID
}
