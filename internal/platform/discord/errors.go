package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/support-bot/internal/platform"
)

// mapError translates REST failures into the platform error set. Errors that do
// not match a known code are wrapped unchanged and treated as transient upstream.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return fmt.Errorf("discord %s: %w", op, err)
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("discord %s: %w: %s", op, platform.ErrNotFound, restErr.Message.Message)
		case discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("discord %s: %w: %s", op, platform.ErrUnreachable, restErr.Message.Message)
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("discord %s: %w: %s", op, platform.ErrForbidden, restErr.Message.Message)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("discord %s: %w", op, platform.ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("discord %s: %w", op, platform.ErrForbidden)
		}
	}
	return fmt.Errorf("discord %s: %w", op, err)
}
