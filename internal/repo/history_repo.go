package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// AppendHistory records the pre-edit body of a message. Rows are never
// updated afterwards.
func AppendHistory(ctx context.Context, db *gorm.DB, messageID, oldBody, editorID string, editedAt time.Time) (*domain.MessageHistory, error) {
	h := &domain.MessageHistory{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		OldBody:    oldBody,
		EditorID:   editorID,
		EditedAt:   editedAt.UTC(),
		RecordedAt: time.Now().UTC(),
	}
	return h, db.WithContext(ctx).Omit(clause.Associations).Create(h).Error
}

// ListHistory returns the history of a message newest first
// (EditedAt DESC, RecordedAt DESC).
func ListHistory(ctx context.Context, db *gorm.DB, messageID string) ([]domain.MessageHistory, error) {
	out := []domain.MessageHistory{}
	err := db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("edited_at DESC, recorded_at DESC").
		Find(&out).Error
	return out, err
}

// CountHistory returns the number of history rows of a message.
func CountHistory(ctx context.Context, db *gorm.DB, messageID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.MessageHistory{}).Where("message_id = ?", messageID).Count(&n).Error
	return n, err
}
