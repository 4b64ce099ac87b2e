// Package services – NotificationService
//
// This file implements the notification dispatcher. Dispatch runs after a
// send has committed: it stores one notification per recipient, attempting
// each recipient exactly once, and publishes a notification.created event
// for every stored row. Failures are logged and counted; they never undo
// the message.
package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/events"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

// NotificationService stores, lists and acknowledges notifications.
type NotificationService struct {
	DB        *gorm.DB
	Publisher events.Publisher
}

// NewNotificationService constructs a NotificationService. A nil publisher
// is replaced by a noop one.
func NewNotificationService(db *gorm.DB, pub events.Publisher) *NotificationService {
	if pub == nil {
		pub = events.Noop()
	}
	return &NotificationService{DB: db, Publisher: pub}
}

func (s *NotificationService) tracer() trace.Tracer {
	return otel.Tracer("services/NotificationService")
}

// Dispatch stores one unread notification per recipient of m and returns how
// many were stored.
func (s *NotificationService) Dispatch(ctx context.Context, m *domain.Message, recipientIDs []string) int {
	ctx, span := s.tracer().Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.String("message.id", m.ID),
		attribute.Int("recipients", len(recipientIDs)),
	))
	defer span.End()

	lg := loggerFrom(ctx)
	stored := 0
	for _, uid := range recipientIDs {
		n, err := repo.CreateNotification(ctx, s.DB, uid, m.ID)
		if err != nil {
			notificationsFailed.Inc()
			lg.Error().Err(err).
				Str("message_id", m.ID).
				Str("recipient_id", uid).
				Msg("notification dispatch failed")
			continue
		}
		stored++
		notificationsDispatched.Inc()

		if s.Publisher == nil {
			continue
		}
		ev := events.NotificationCreated{
			NotificationID: n.ID,
			UserID:         uid,
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			SenderID:       m.SenderID,
			CreatedAt:      n.CreatedAt,
		}
		if err := s.Publisher.Publish(ctx, events.RouteNotificationCreated, ev); err != nil {
			lg.Warn().Err(err).
				Str("notification_id", n.ID).
				Msg("notification event publish failed")
		}
	}
	span.SetAttributes(attribute.Int("stored", stored))
	return stored
}

// List returns a page of the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor domain.User, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error) {
	ctx, span := s.tracer().Start(ctx, "List", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.Bool("unread_only", unreadOnly),
	))
	defer span.End()

	if actor.ID == "" {
		return nil, 0, permissionf("authentication required")
	}
	offset, limit := utils.Normalize(page, pageSize)
	items, total, err := repo.ListNotifications(ctx, s.DB, actor.ID, unreadOnly, offset, limit)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}

// MarkRead flags the actor's notifications with the given ids as read and
// returns how many flipped. Other users' ids are ignored.
func (s *NotificationService) MarkRead(ctx context.Context, actor domain.User, ids []string) (int64, error) {
	ctx, span := s.tracer().Start(ctx, "MarkRead", trace.WithAttributes(attribute.String("user.id", actor.ID)))
	defer span.End()

	ids = dedupeIDs(ids)
	if actor.ID == "" || len(ids) == 0 {
		return 0, nil
	}
	n, err := repo.MarkNotificationsRead(ctx, s.DB, actor.ID, ids)
	return n, storageErr(err)
}
