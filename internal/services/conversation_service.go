// Package services – ConversationService
//
// This file implements the conversation registry: creation with at least two
// distinct participants, membership changes by existing members, and the
// membership-filtered reads (conversation list, message listing).
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/access"
	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

// minParticipants is the lower bound on conversation membership.
const minParticipants = 2

// MessageFilter narrows ConversationService.Messages.
type MessageFilter struct {
	SenderID   string
	SentAfter  *time.Time
	SentBefore *time.Time
	Contains   string
}

// ConversationService manages conversations and their participants.
type ConversationService struct {
	DB *gorm.DB
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

func (s *ConversationService) tracer() trace.Tracer {
	return otel.Tracer("services/ConversationService")
}

// Create starts a conversation between actor and participantIDs. The actor
// is added when absent and duplicates collapse; fewer than two distinct
// members or an unknown user id yields ErrValidation.
func (s *ConversationService) Create(ctx context.Context, actor domain.User, participantIDs []string) (*domain.Conversation, error) {
	ctx, span := s.tracer().Start(ctx, "Create", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.Int("participants.requested", len(participantIDs)),
	))
	defer span.End()

	if actor.ID == "" {
		return nil, permissionf("authentication required")
	}
	members := dedupeIDs(append([]string{actor.ID}, participantIDs...))
	if len(members) < minParticipants {
		return nil, validationf("a conversation needs at least %d distinct participants", minParticipants)
	}

	var created *domain.Conversation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := repo.CountExistingUsers(ctx, tx, members)
		if err != nil {
			return err
		}
		if n != int64(len(members)) {
			return validationf("one or more participants do not exist")
		}
		c, err := repo.CreateConversation(ctx, tx, actor.ID, members)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	span.SetAttributes(attribute.String("conversation.id", created.ID))
	return s.load(ctx, created.ID)
}

// AddParticipant adds userID to the conversation. Only existing members may
// do so; adding a member twice is a no-op.
func (s *ConversationService) AddParticipant(ctx context.Context, actor domain.User, conversationID, userID string) (*domain.Conversation, error) {
	ctx, span := s.tracer().Start(ctx, "AddParticipant", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
		attribute.String("subject.id", userID),
	))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := authorizeConversation(ctx, tx, actor, conversationID, access.ManageParticipants); err != nil {
			return err
		}
		if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("user")
			}
			return err
		}
		_, err := repo.AddParticipant(ctx, tx, conversationID, userID)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return s.load(ctx, conversationID)
}

// RemoveParticipant removes userID from the conversation. Only existing
// members may do so; removing a non-member is a no-op. A removal that would
// leave fewer than two members yields ErrValidation.
func (s *ConversationService) RemoveParticipant(ctx context.Context, actor domain.User, conversationID, userID string) (*domain.Conversation, error) {
	ctx, span := s.tracer().Start(ctx, "RemoveParticipant", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
		attribute.String("subject.id", userID),
	))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := authorizeConversation(ctx, tx, actor, conversationID, access.ManageParticipants); err != nil {
			return err
		}
		if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound("user")
			}
			return err
		}
		member, err := repo.IsParticipant(ctx, tx, conversationID, userID)
		if err != nil || !member {
			return err
		}
		n, err := repo.CountParticipants(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if n <= minParticipants {
			return validationf("a conversation needs at least %d participants", minParticipants)
		}
		_, err = repo.RemoveParticipant(ctx, tx, conversationID, userID)
		return err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return s.load(ctx, conversationID)
}

// Get returns a conversation with its participants. Members only.
func (s *ConversationService) Get(ctx context.Context, actor domain.User, conversationID string) (*domain.Conversation, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	if err := authorizeConversation(ctx, s.DB, actor, conversationID, access.ReadConversation); err != nil {
		return nil, storageErr(err)
	}
	return s.load(ctx, conversationID)
}

// ListForUser returns the actor's conversations newest first, each with its
// message count and last message.
func (s *ConversationService) ListForUser(ctx context.Context, actor domain.User, page, pageSize int) ([]repo.ConversationSummary, int64, error) {
	ctx, span := s.tracer().Start(ctx, "ListForUser", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if actor.ID == "" {
		return nil, 0, permissionf("authentication required")
	}
	offset, limit := utils.Normalize(page, pageSize)
	items, total, err := repo.ListConversationsForUser(ctx, s.DB, actor.ID, offset, limit)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}

// Messages returns a page of a conversation's messages ordered by send time
// (ties broken by insertion order). Members only.
func (s *ConversationService) Messages(ctx context.Context, actor domain.User, conversationID string, f MessageFilter, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := s.tracer().Start(ctx, "Messages", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if f.SentAfter != nil && f.SentBefore != nil && !f.SentAfter.Before(*f.SentBefore) {
		return nil, 0, validationf("sent_after must be before sent_before")
	}
	if err := authorizeConversation(ctx, s.DB, actor, conversationID, access.ReadConversation); err != nil {
		return nil, 0, storageErr(err)
	}

	offset, limit := utils.Normalize(page, pageSize)
	items, total, err := repo.ListMessagesPage(ctx, s.DB, conversationID, repo.MessageFilter{
		SenderID:   f.SenderID,
		SentAfter:  f.SentAfter,
		SentBefore: f.SentBefore,
		Contains:   f.Contains,
	}, offset, limit)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}

// Stats returns the message aggregate of a conversation, used to derive
// cache validators. Members only.
func (s *ConversationService) Stats(ctx context.Context, actor domain.User, conversationID string) (repo.MessageStats, error) {
	ctx, span := s.tracer().Start(ctx, "Stats", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	if err := authorizeConversation(ctx, s.DB, actor, conversationID, access.ReadConversation); err != nil {
		return repo.MessageStats{}, storageErr(err)
	}
	st, err := repo.MessagesStats(ctx, s.DB, conversationID)
	if err != nil {
		return repo.MessageStats{}, storageErr(err)
	}
	return st, nil
}

func (s *ConversationService) load(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversationWithParticipants(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("conversation")
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return c, nil
}

// authorizeConversation loads the conversation and asks the evaluator
// whether actor may perform action on it, using membership as the only fact.
func authorizeConversation(ctx context.Context, db *gorm.DB, actor domain.User, conversationID string, action access.Action) error {
	if _, err := repo.GetConversation(ctx, db, conversationID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("conversation")
		}
		return err
	}
	member, err := repo.IsParticipant(ctx, db, conversationID, actor.ID)
	if err != nil {
		return err
	}
	if !access.Can(actor, action, access.Target{Participant: member}) {
		return permissionf("not a participant of conversation %s", conversationID)
	}
	return nil
}

// dedupeIDs trims ids, drops blanks and keeps first occurrences in order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
