// Conversations and their participant join table.

package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// ConversationSummary is a list entry: the conversation with its
// participants, the number of messages and the newest message.
type ConversationSummary struct {
	domain.Conversation
	MessageCount int64           `json:"message_count"`
	LastMessage  *domain.Message `json:"last_message,omitempty"`
}

// CreateConversation inserts a conversation and one participant row per
// entry of userIDs. userIDs must already be de-duplicated.
func CreateConversation(ctx context.Context, db *gorm.DB, createdBy string, userIDs []string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	db = db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(c).Error; err != nil {
		return nil, err
	}
	ps := make([]domain.Participant, 0, len(userIDs))
	for _, id := range userIDs {
		ps = append(ps, domain.Participant{ConversationID: c.ID, UserID: id, JoinedAt: now})
	}
	if len(ps) > 0 {
		if err := db.Omit(clause.Associations).Create(&ps).Error; err != nil {
			return nil, err
		}
	}
	c.Participants = ps
	return c, nil
}

// GetConversation fetches a conversation by ID without participants.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func preloadParticipants(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Participants", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("joined_at ASC, user_id ASC")
		}).
		Preload("Participants.User")
}

// GetConversationWithParticipants fetches a conversation together with its
// participants (ordered by join time) and their user rows.
func GetConversationWithParticipants(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := preloadParticipants(db.WithContext(ctx)).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// IsParticipant reports whether userID is a member of conversationID.
func IsParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&n).Error
	return n > 0, err
}

// ListParticipantIDs returns the member ids of a conversation ordered by
// join time.
func ListParticipantIDs(ctx context.Context, db *gorm.DB, conversationID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC, user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

// CountParticipants returns the number of members of a conversation.
func CountParticipants(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Participant{}).
		Where("conversation_id = ?", conversationID).
		Count(&n).Error
	return n, err
}

// AddParticipant inserts a membership row. It reports false when the user
// already was a member.
func AddParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	p := domain.Participant{ConversationID: conversationID, UserID: userID, JoinedAt: time.Now().UTC()}
	res := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&p)
	return res.RowsAffected > 0, res.Error
}

// RemoveParticipant deletes a membership row. It reports false when the user
// was not a member.
func RemoveParticipant(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&domain.Participant{})
	return res.RowsAffected > 0, res.Error
}

// NextSeq increments the conversation's insertion counter and returns the
// new value. It must run inside the send transaction.
func NextSeq(ctx context.Context, tx *gorm.DB, conversationID string) (int64, error) {
	tx = tx.WithContext(ctx)
	res := tx.Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_seq", gorm.Expr("last_seq + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	var seq int64
	err := tx.Model(&domain.Conversation{}).Where("id = ?", conversationID).Pluck("last_seq", &seq).Error
	return seq, err
}

// ListConversationsForUser returns a page of the conversations userID belongs
// to, newest first (CreatedAt DESC, ID ASC), and the total count.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]ConversationSummary, int64, error) {
	db = db.WithContext(ctx)
	q := db.Model(&domain.Conversation{}).
		Where("id IN (?)", db.Model(&domain.Participant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []ConversationSummary{}
	if total == 0 {
		return out, 0, nil
	}

	var convs []domain.Conversation
	if err := preloadParticipants(q).Order("created_at DESC, id ASC").Offset(offset).Limit(limit).Find(&convs).Error; err != nil {
		return nil, 0, err
	}
	if len(convs) == 0 {
		return out, total, nil
	}

	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	var counts []struct {
		ConversationID string
		N              int64
	}
	if err := db.Model(&domain.Message{}).
		Select("conversation_id, COUNT(*) AS n").
		Where("conversation_id IN ?", ids).
		Group("conversation_id").
		Scan(&counts).Error; err != nil {
		return nil, 0, err
	}
	byConv := make(map[string]int64, len(counts))
	for _, c := range counts {
		byConv[c.ConversationID] = c.N
	}

	for _, c := range convs {
		s := ConversationSummary{Conversation: c, MessageCount: byConv[c.ID]}
		if s.MessageCount > 0 {
			var last domain.Message
			if err := db.Where("conversation_id = ?", c.ID).Order("sent_at DESC, seq DESC").First(&last).Error; err != nil {
				return nil, 0, err
			}
			s.LastMessage = &last
		}
		out = append(out, s)
	}
	return out, total, nil
}
