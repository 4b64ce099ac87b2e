package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// CreateNotification inserts one unread notification for userID.
func CreateNotification(ctx context.Context, db *gorm.DB, userID, messageID string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: time.Now().UTC(),
	}
	return n, db.WithContext(ctx).Omit(clause.Associations).Create(n).Error
}

// ListNotifications returns a page of userID's notifications newest first
// (CreatedAt DESC, ID ASC) and the total count. unreadOnly adds
// is_read = false.
func ListNotifications(ctx context.Context, db *gorm.DB, userID string, unreadOnly bool, offset, limit int) ([]domain.Notification, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []domain.Notification{}
	if total == 0 {
		return out, 0, nil
	}
	err := q.Order("created_at DESC, id ASC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// MarkNotificationsRead flags userID's notifications with the given ids as
// read. Foreign ids are ignored. It returns the number flipped.
func MarkNotificationsRead(ctx context.Context, db *gorm.DB, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND id IN ? AND is_read = ?", userID, ids, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkNotificationsReadForMessages flags userID's notifications about any of
// messageIDs as read.
func MarkNotificationsReadForMessages(ctx context.Context, db *gorm.DB, userID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Model(&domain.Notification{}).
		Where("user_id = ? AND message_id IN ? AND is_read = ?", userID, messageIDs, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
