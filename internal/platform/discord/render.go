package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/spec-kit/support-bot/internal/platform"
)

// RenderEmbeds converts the optional card of msg.
func RenderEmbeds(msg platform.Message) []*discordgo.MessageEmbed {
	if msg.Embed == nil {
		return nil
	}
	e := msg.Embed
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIconURL}
	}
	if e.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	return []*discordgo.MessageEmbed{embed}
}

// RenderComponents converts actions into one row of buttons and the select menu
// into a row of its own.
func RenderComponents(msg platform.Message) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	if len(msg.Actions) > 0 {
		buttons := make([]discordgo.MessageComponent, 0, len(msg.Actions))
		for _, action := range msg.Actions {
			buttons = append(buttons, discordgo.Button{
				Label:    action.Label,
				Style:    buttonStyle(action.Style),
				CustomID: action.ID(),
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	if msg.Select != nil {
		options := make([]discordgo.SelectMenuOption, 0, len(msg.Select.Options))
		for _, opt := range msg.Select.Options {
			options = append(options, discordgo.SelectMenuOption{
				Label:       opt.Label,
				Value:       opt.Value,
				Description: opt.Description,
			})
		}
		minValues := 1
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    msg.Select.ID,
				Placeholder: msg.Select.Placeholder,
				MinValues:   &minValues,
				MaxValues:   1,
				Options:     options,
			},
		}})
	}
	return rows
}

// RenderMessage builds the REST payload of msg.
func RenderMessage(msg platform.Message) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     RenderEmbeds(msg),
		Components: RenderComponents(msg),
	}
}

func buttonStyle(style platform.ActionStyle) discordgo.ButtonStyle {
	switch style {
	case platform.StyleSuccess:
		return discordgo.SuccessButton
	case platform.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.PrimaryButton
	}
}
