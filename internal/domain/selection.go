package domain

import "time"

// Category is one entry of the help menu sent to users.
type Category string

const (
	CategoryChannelsHidden Category = "Nie widzę kanałów"
	CategoryRecruitment    Category = "Jak napisać rekrutację?"
	CategoryGameProblem    Category = "Mam problem z grą"
	CategoryServerIdea     Category = "Mam pomysł na serwer"
	CategoryConnectStaff   Category = "Połącz mnie z asystentem"
)

// CategoryOption pairs a category with its menu description.
type CategoryOption struct {
	Category    Category
	Description string
}

// Categories lists the help menu in display order.
var Categories = []CategoryOption{
	{Category: CategoryChannelsHidden, Description: "Problem z widocznością kanałów"},
	{Category: CategoryRecruitment, Description: "Pytanie o rekrutację"},
	{Category: CategoryGameProblem, Description: "Problem techniczny z grą"},
	{Category: CategoryServerIdea, Description: "Chcę zgłosić pomysł"},
	{Category: CategoryConnectStaff, Description: "Potrzebuję kontaktu z supportem"},
}

// ParseCategory matches a menu value against the known categories.
func ParseCategory(value string) (Category, bool) {
	for _, opt := range Categories {
		if string(opt.Category) == value {
			return opt.Category, true
		}
	}
	return "", false
}

// OpensTicket reports whether picking the category opens a dedicated channel.
func (c Category) OpensTicket() bool {
	return c == CategoryConnectStaff
}

// PendingSelection is a category choice waiting for one free-text message.
type PendingSelection struct {
	Owner     string
	Category  Category
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the selection outlived its lifetime at now.
func (p PendingSelection) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
