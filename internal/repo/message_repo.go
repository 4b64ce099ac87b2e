package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// MessageFilter narrows ListMessagesPage. Zero values disable a predicate.
type MessageFilter struct {
	SenderID   string
	SentAfter  *time.Time // inclusive
	SentBefore *time.Time // exclusive
	Contains   string     // case-insensitive body substring
}

// NewMessage carries the columns a send writes.
type NewMessage struct {
	ConversationID string
	SenderID       string
	ParentID       *string
	Body           string
	SentAt         time.Time
	Seq            int64
}

// CreateMessage inserts a new message row with Read/Edited false and Version 1.
func CreateMessage(ctx context.Context, db *gorm.DB, in NewMessage) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		ParentID:       in.ParentID,
		Body:           in.Body,
		SentAt:         in.SentAt.UTC(),
		Seq:            in.Seq,
		Version:        1,
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessages fetches every message whose id is in ids. Missing ids are
// skipped. Order is unspecified.
func GetMessages(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Message, error) {
	if len(ids) == 0 {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).
		Scan(&total).Error
	return total, err
}

func filteredMessages(ctx context.Context, db *gorm.DB, conversationID string, f MessageFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)
	if f.SenderID != "" {
		q = q.Where("sender_id = ?", f.SenderID)
	}
	if f.SentAfter != nil {
		q = q.Where("sent_at >= ?", f.SentAfter.UTC())
	}
	if f.SentBefore != nil {
		q = q.Where("sent_at < ?", f.SentBefore.UTC())
	}
	if s := strings.TrimSpace(f.Contains); s != "" {
		q = q.Where("LOWER(body) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	return q.Session(&gorm.Session{})
}

// ListMessagesPage returns a filtered page ordered (SentAt ASC, Seq ASC) and
// the total number of rows matching f.
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, f MessageFilter, offset, limit int) ([]domain.Message, int64, error) {
	q := filteredMessages(ctx, db, conversationID, f)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []domain.Message{}
	if total == 0 {
		return out, 0, nil
	}
	err := q.Order("sent_at ASC, seq ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// ListConversationMessages returns every message of a conversation ordered
// (SentAt ASC, Seq ASC). limit <= 0 means no limit.
func ListConversationMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("sent_at ASC, seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListReplies returns the direct replies to any of parentIDs, ordered
// (SentAt ASC, Seq ASC).
func ListReplies(ctx context.Context, db *gorm.DB, parentIDs []string) ([]domain.Message, error) {
	out := []domain.Message{}
	if len(parentIDs) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).
		Where("parent_id IN ?", parentIDs).
		Order("sent_at ASC, seq ASC").
		Find(&out).Error
	return out, err
}

// EditMessage is the column set written by an accepted edit.
type EditMessage struct {
	Body     string
	EditorID string
	EditedAt time.Time
}

// UpdateMessageBody applies e to message id if and only if its version still
// equals fromVersion, bumping the version by one. It returns
// ErrVersionConflict when no row matched.
func UpdateMessageBody(ctx context.Context, db *gorm.DB, id string, fromVersion int, e EditMessage) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND version = ?", id, fromVersion).
		Updates(map[string]any{
			"body":      e.Body,
			"edited":    true,
			"edited_at": e.EditedAt.UTC(),
			"edited_by": e.EditorID,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// MarkMessagesReadIfComplete sets read=true on every message in ids that no
// longer has an unread receipt. It returns the number of rows updated.
func MarkMessagesReadIfComplete(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id IN ?", ids).
		Where("NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id = messages.id AND r.read_at IS NULL)").
		Update("read", true)
	return res.RowsAffected, res.Error
}

// DeleteMessage hard-deletes a message together with its history, receipts
// and notifications. Direct replies survive with parent_id cleared.
// It returns ErrNotFound if the message does not exist.
func DeleteMessage(ctx context.Context, tx *gorm.DB, id string) error {
	var n int64
	if err := tx.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return deleteMessageRows(tx.WithContext(ctx), []string{id})
}

// deleteMessageRows removes the messages in ids and every row that points at
// them. Dependents go first so the delete also works without FK cascades.
func deleteMessageRows(tx *gorm.DB, ids []string) error {
	steps := []func() error{
		func() error {
			return tx.Model(&domain.Message{}).Where("parent_id IN ?", ids).Update("parent_id", nil).Error
		},
		func() error { return tx.Where("message_id IN ?", ids).Delete(&domain.MessageHistory{}).Error },
		func() error { return tx.Where("message_id IN ?", ids).Delete(&domain.Receipt{}).Error },
		func() error { return tx.Where("message_id IN ?", ids).Delete(&domain.Notification{}).Error },
		func() error { return tx.Where("id IN ?", ids).Delete(&domain.Message{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
