// Package access is the authorization evaluator of the messaging core.
//
// Can is a pure function: it looks only at the acting user, the requested
// action and the facts the caller has gathered about the target. It never
// touches storage, so services load the target first and then ask.
package access

import "github.com/tbourn/go-messaging-core/internal/domain"

// Action is something an actor attempts on a target.
type Action int

const (
	ReadConversation Action = iota + 1
	ManageParticipants
	SendMessage
	ReadMessage
	EditMessage
	DeleteMessage
	MarkRead
	ReadHistory
	ListUsers
	DeleteUser
)

var actionNames = map[Action]string{
	ReadConversation:   "read_conversation",
	ManageParticipants: "manage_participants",
	SendMessage:        "send_message",
	ReadMessage:        "read_message",
	EditMessage:        "edit_message",
	DeleteMessage:      "delete_message",
	MarkRead:           "mark_read",
	ReadHistory:        "read_history",
	ListUsers:          "list_users",
	DeleteUser:         "delete_user",
}

// String returns the snake_case name used in logs and error reasons.
func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return "unknown"
}

// Target holds what the caller knows about the object being acted on.
type Target struct {
	// Participant is true when the actor belongs to the conversation that
	// owns the target.
	Participant bool
	// Sender is true when the actor sent the target message.
	Sender bool
	// SubjectID is the user an identity action is about (DeleteUser).
	SubjectID string
}

// Can reports whether actor may perform action on target.
//
// Predicates are independent:
//   - participant: read conversation and messages, send, mark read,
//     manage participants
//   - sender: edit and delete (ownership)
//   - sender or participant: read history
//   - admin or moderator: list users, delete any user; anyone may delete
//     themselves
//
// A zero actor, an unknown role or an unknown action is denied.
func Can(actor domain.User, action Action, target Target) bool {
	if actor.ID == "" {
		return false
	}
	if !actor.Role.Valid() {
		return false
	}

	switch action {
	case ReadConversation, ReadMessage, SendMessage, MarkRead, ManageParticipants:
		return target.Participant
	case EditMessage, DeleteMessage:
		return target.Sender
	case ReadHistory:
		return target.Sender || target.Participant
	case ListUsers:
		return privileged(actor.Role)
	case DeleteUser:
		return privileged(actor.Role) || (target.SubjectID != "" && target.SubjectID == actor.ID)
	}
	return false
}

// privileged reports whether r overrides listing restrictions.
func privileged(r domain.Role) bool {
	switch r {
	case domain.RoleAdmin, domain.RoleModerator:
		return true
	case domain.RoleGuest, domain.RoleHost:
		return false
	}
	return false
}
