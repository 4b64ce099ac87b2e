// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model
// (the identity store).
//
// Error semantics:
//   - When a user is not found, functions return ErrNotFound.
//   - Unique violations on username/email are returned as ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// UserFilter narrows ListUsers. Zero values disable a predicate.
type UserFilter struct {
	Role     domain.Role
	Username string // case-insensitive substring
}

// CreateUser inserts a new user with a random UUID and a UTC timestamp.
func CreateUser(ctx context.Context, db *gorm.DB, username, email string, role domain.Role) (*domain.User, error) {
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CountExistingUsers returns how many of ids resolve to a user row.
// Duplicates in ids are counted once.
func CountExistingUsers(ctx context.Context, db *gorm.DB, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// ListUsers returns users matching f, newest first.
// Predicate: (role = f.Role if set) AND (lower(username) LIKE %f.Username% if set).
func ListUsers(ctx context.Context, db *gorm.DB, f UserFilter, offset, limit int) ([]domain.User, int64, error) {
	q := db.WithContext(ctx).Model(&domain.User{})
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if s := strings.TrimSpace(f.Username); s != "" {
		q = q.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.User
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	err := q.Order("created_at desc, id asc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// DeleteUser removes a user and everything that references them:
// messages they sent (with those messages' history, receipts and
// notifications), their own receipts and notifications, history rows they
// authored, and their memberships. Replies to deleted messages are detached
// and edited_by pointers to the user are cleared.
//
// It must run inside a transaction; callers pass the tx handle.
func DeleteUser(ctx context.Context, tx *gorm.DB, id string) error {
	tx = tx.WithContext(ctx)

	var sent []string
	if err := tx.Model(&domain.Message{}).Where("sender_id = ?", id).Pluck("id", &sent).Error; err != nil {
		return err
	}
	if len(sent) > 0 {
		if err := deleteMessageRows(tx, sent); err != nil {
			return err
		}
	}

	steps := []func() error{
		func() error { return tx.Where("user_id = ?", id).Delete(&domain.Receipt{}).Error },
		func() error { return tx.Where("user_id = ?", id).Delete(&domain.Notification{}).Error },
		func() error { return tx.Where("editor_id = ?", id).Delete(&domain.MessageHistory{}).Error },
		func() error {
			return tx.Model(&domain.Message{}).Where("edited_by = ?", id).Update("edited_by", nil).Error
		},
		func() error { return tx.Where("user_id = ?", id).Delete(&domain.Participant{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	res := tx.Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
