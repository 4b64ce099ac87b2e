package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// CreateReceipts inserts one unread receipt per recipient of messageID.
func CreateReceipts(ctx context.Context, db *gorm.DB, messageID string, recipientIDs []string) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	rs := make([]domain.Receipt, 0, len(recipientIDs))
	for _, uid := range recipientIDs {
		rs = append(rs, domain.Receipt{MessageID: messageID, UserID: uid})
	}
	return db.WithContext(ctx).Omit(clause.Associations).Create(&rs).Error
}

// MarkReceiptsRead sets read_at on userID's unread receipts among
// messageIDs. Receipts already read are left untouched, so the returned
// count is the number flipped from unread to read.
func MarkReceiptsRead(ctx context.Context, db *gorm.DB, userID string, messageIDs []string, at time.Time) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("user_id = ? AND message_id IN ? AND read_at IS NULL", userID, messageIDs).
		Update("read_at", at.UTC())
	return res.RowsAffected, res.Error
}

// ListReceipts returns the receipts of one message ordered by user id.
func ListReceipts(ctx context.Context, db *gorm.DB, messageID string) ([]domain.Receipt, error) {
	var out []domain.Receipt
	err := db.WithContext(ctx).Where("message_id = ?", messageID).Order("user_id ASC").Find(&out).Error
	return out, err
}

// CountUnread returns how many messages userID has not read yet.
// Predicate: receipt.user_id = userID AND receipt.read_at IS NULL.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Receipt{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

// ListUnread returns a page of the messages userID has not read, oldest
// first (SentAt ASC, Seq ASC), and the total count.
func ListUnread(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Message, int64, error) {
	total, err := CountUnread(ctx, db, userID)
	if err != nil {
		return nil, 0, err
	}
	out := []domain.Message{}
	if total == 0 {
		return out, 0, nil
	}
	err = db.WithContext(ctx).
		Joins("JOIN message_receipts r ON r.message_id = messages.id").
		Where("r.user_id = ? AND r.read_at IS NULL", userID).
		Order("messages.sent_at ASC, messages.seq ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, total, err
}
