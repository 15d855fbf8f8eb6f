package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/support-bot/internal/platform"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

const (
	msgUserNotFound    = "Nie można znaleźć użytkownika."
	msgUserDMBlocked   = "Nie można wysłać wiadomości użytkownikowi (DM zablokowane)."
	msgRequesterDMOff  = "Nie mogę wysłać Ci wiadomości prywatnej. Ustaw, aby bot mógł pisać do Ciebie DM."
	msgPlatformFailure = "Platforma nie odpowiada. Spróbuj ponownie za chwilę."
)

// directMessageError maps a failed private message onto the error taxonomy.
func directMessageError(err error, unreachable string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, platform.ErrNotFound):
		return apperrors.NewNotFound(msgUserNotFound, nil)
	case errors.Is(err, platform.ErrUnreachable), errors.Is(err, platform.ErrForbidden):
		return apperrors.NewUnreachable(unreachable, err)
	default:
		return apperrors.NewPlatformTransient(msgPlatformFailure, err)
	}
}

// humanDelay renders a delay the way closure notices announce it.
func humanDelay(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		return "chwilę"
	}
	return fmt.Sprintf("%d %s", minutes, minuteNoun(minutes))
}

func minuteNoun(n int) string {
	if n == 1 {
		return "minutę"
	}
	lastTwo := n % 100
	last := n % 10
	if last >= 2 && last <= 4 && (lastTwo < 12 || lastTwo > 14) {
		return "minuty"
	}
	return "minut"
}
