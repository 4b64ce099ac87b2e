// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// MessageStats summarizes the visible state of a conversation's messages.
// Any send, edit, delete or read-flag change alters at least one field.
type MessageStats struct {
	Count    int64      // rows
	Versions int64      // sum of versions, bumped by every edit
	Read     int64      // rows with read = true
	Latest   *time.Time // newest sent_at or edited_at; nil without rows
}

// MessagesStats returns aggregate metadata for messages within a
// conversation. When the conversation has no messages, the zero value is
// returned.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (MessageStats, error) {
	var st MessageStats
	q := db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Session(&gorm.Session{})

	if err := q.Count(&st.Count).Error; err != nil {
		return MessageStats{}, err
	}
	if st.Count == 0 {
		return MessageStats{}, nil
	}

	var agg struct {
		Versions int64
		Read     int64
	}
	err := q.Select("COALESCE(SUM(version), 0) AS versions, COALESCE(SUM(CASE WHEN read THEN 1 ELSE 0 END), 0) AS read").
		Scan(&agg).Error
	if err != nil {
		return MessageStats{}, err
	}
	st.Versions, st.Read = agg.Versions, agg.Read

	// Ordered single-row reads avoid MAX() of a datetime coming back as TEXT in SQLite.
	var sent struct{ SentAt time.Time }
	if err := q.Select("sent_at").Order("sent_at DESC").Limit(1).Scan(&sent).Error; err != nil {
		return MessageStats{}, err
	}
	latestAt := sent.SentAt

	var edited struct{ EditedAt *time.Time }
	if err := q.Select("edited_at").Where("edited_at IS NOT NULL").Order("edited_at DESC").Limit(1).Scan(&edited).Error; err != nil {
		return MessageStats{}, err
	}
	if edited.EditedAt != nil && edited.EditedAt.After(latestAt) {
		latestAt = *edited.EditedAt
	}
	st.Latest = &latestAt
	return st, nil
}
