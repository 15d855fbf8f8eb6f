package platform

import "strings"

// ActionKind names what pressing an action does.
type ActionKind string

const (
	ActionHelp   ActionKind = "help"
	ActionSelect ActionKind = "select"
	ActionClaim  ActionKind = "claim"
	ActionReject ActionKind = "reject"
	ActionReply  ActionKind = "reply"
	// ActionReplyModal identifies the submitted reply form.
	ActionReplyModal ActionKind = "reply-modal"
)

const actionSeparator = ":"

// EncodeAction builds the identifier carried by a component.
func EncodeAction(kind ActionKind, target string) string {
	if target == "" {
		return string(kind)
	}
	return string(kind) + actionSeparator + target
}

// DecodeAction splits a component identifier produced by EncodeAction.
func DecodeAction(id string) (ActionKind, string, bool) {
	if id == "" {
		return "", "", false
	}
	kind, target, _ := strings.Cut(id, actionSeparator)
	switch ActionKind(kind) {
	case ActionHelp, ActionSelect:
		return ActionKind(kind), target, true
	case ActionClaim, ActionReject, ActionReply, ActionReplyModal:
		if target == "" {
			return "", "", false
		}
		return ActionKind(kind), target, true
	}
	return "", "", false
}

// ID returns the encoded identifier of the action.
func (a Action) ID() string {
	return EncodeAction(a.Kind, a.Target)
}
