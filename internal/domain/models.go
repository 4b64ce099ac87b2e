// Package domain defines the persistence models for users, conversations,
// messages, edit history, read receipts and notifications. These types are
// mapped with GORM and form the core data layer of the messaging service.
package domain

import (
	"time"
)

// Role is the closed set of user roles understood by the access evaluator.
type Role string

const (
	RoleGuest     Role = "guest"
	RoleHost      Role = "host"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid Role in declaration order.
var Roles = []Role{RoleGuest, RoleHost, RoleModerator, RoleAdmin}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s to a Role. The empty string maps to RoleGuest.
func ParseRole(s string) (Role, bool) {
	if s == "" {
		return RoleGuest, true
	}
	r := Role(s)
	return r, r.Valid()
}

// User is a registered identity. The ID never changes after creation.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Username / Email: unique, used for lookup and display.
//   - Role: one of the Role constants (enforced by DB constraint).
//   - CreatedAt: registration time (UTC).
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Username  string    `json:"username"   gorm:"type:varchar(150);not null;uniqueIndex:ux_users_username"`
	Email     string    `json:"email"      gorm:"type:varchar(254);not null;uniqueIndex:ux_users_email"`
	Role      Role      `json:"role"       gorm:"type:varchar(16);not null;default:'guest';check:role IN ('guest','host','moderator','admin')"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation groups two or more participants. LastSeq is bumped inside
// every send transaction and stamped on the new message, giving a stable
// insertion order for messages whose SentAt values collide.
type Conversation struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	CreatedBy string    `json:"created_by" gorm:"type:char(36);not null;index"`
	LastSeq   int64     `json:"-"          gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Participant is a membership row of the conversation/user join table.
type Participant struct {
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);primaryKey"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);primaryKey;index:idx_participants_user"`
	JoinedAt       time.Time `json:"joined_at"`

	User User `json:"user" gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Participant.
func (Participant) TableName() string { return "conversation_participants" }

// Message is a single post inside a conversation.
//
// Fields:
//   - ParentID: optional reply target inside the same conversation. It is
//     fixed at creation and must reference an already existing message, so
//     reply chains can never form a cycle.
//   - Seq: per-conversation insertion counter (tie-breaker for SentAt).
//   - Read: true once every recipient has a read receipt.
//   - Edited / EditedAt / EditedBy: edit metadata, set by the last edit.
//   - Version: starts at 1 and is incremented by every accepted edit.
type Message struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderID       string     `json:"sender_id"       gorm:"type:char(36);not null;index"`
	ParentID       *string    `json:"parent_id,omitempty" gorm:"type:char(36);index"`
	Body           string     `json:"body"            gorm:"type:text;not null"`
	SentAt         time.Time  `json:"sent_at"         gorm:"not null;index:idx_conv_msgs,priority:2"`
	Seq            int64      `json:"seq"             gorm:"not null;index:idx_conv_msgs,priority:3"`
	Read           bool       `json:"read"            gorm:"not null;default:false"`
	Edited         bool       `json:"edited"          gorm:"not null;default:false"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	EditedBy       *string    `json:"edited_by,omitempty" gorm:"type:char(36)"`
	Version        int        `json:"version"         gorm:"not null;default:1"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageHistory stores the body a message had before one accepted edit.
// EditedAt is the previous save point of the message (its prior EditedAt,
// or SentAt for the first edit). RecordedAt is the insert time.
type MessageHistory struct {
	ID         string    `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID  string    `json:"message_id" gorm:"type:char(36);not null;index:idx_history_msg,priority:1"`
	OldBody    string    `json:"old_body"   gorm:"type:text;not null"`
	EditorID   string    `json:"editor_id"  gorm:"type:char(36);not null;index"`
	EditedAt   time.Time `json:"edited_at"  gorm:"not null;index:idx_history_msg,priority:2"`
	RecordedAt time.Time `json:"recorded_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageHistory.
func (MessageHistory) TableName() string { return "message_history" }

// Receipt tracks whether one recipient has read one message.
type Receipt struct {
	MessageID string     `json:"message_id" gorm:"type:char(36);primaryKey"`
	UserID    string     `json:"user_id"    gorm:"type:char(36);primaryKey;index:idx_receipts_user"`
	ReadAt    *time.Time `json:"read_at,omitempty" gorm:"index"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Receipt.
func (Receipt) TableName() string { return "message_receipts" }

// Notification tells a recipient that a new message arrived.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_notif_user,priority:1"`
	MessageID string    `json:"message_id" gorm:"type:char(36);not null;index"`
	IsRead    bool      `json:"is_read"    gorm:"not null;default:false;index:idx_notif_user,priority:2"`
	CreatedAt time.Time `json:"created_at"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
