// Package handlers exposes the messaging core over HTTP.
//
// Handlers are transport-thin: they bind and shape input, resolve the acting
// user set by middleware.Identity, call the application services and
// translate results (or service error kinds) into HTTP responses.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/http/middleware"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/services"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService manages identities.
type UserService interface {
	Register(ctx context.Context, username, email string, role domain.Role) (*domain.User, error)
	List(ctx context.Context, actor domain.User, f services.UserFilter, page, pageSize int) ([]domain.User, int64, error)
	Delete(ctx context.Context, actor domain.User, userID string) error
}

// ConversationService manages conversations and their membership.
type ConversationService interface {
	Create(ctx context.Context, actor domain.User, participantIDs []string) (*domain.Conversation, error)
	AddParticipant(ctx context.Context, actor domain.User, conversationID, userID string) (*domain.Conversation, error)
	RemoveParticipant(ctx context.Context, actor domain.User, conversationID, userID string) (*domain.Conversation, error)
	Get(ctx context.Context, actor domain.User, conversationID string) (*domain.Conversation, error)
	ListForUser(ctx context.Context, actor domain.User, page, pageSize int) ([]repo.ConversationSummary, int64, error)
	Messages(ctx context.Context, actor domain.User, conversationID string, f services.MessageFilter, page, pageSize int) ([]domain.Message, int64, error)
	Stats(ctx context.Context, actor domain.User, conversationID string) (repo.MessageStats, error)
}

// MessageService posts, edits and deletes messages and tracks read state.
type MessageService interface {
	SendIdempotent(ctx context.Context, actor domain.User, conversationID, body string, parentID *string, key string) (*domain.Message, bool, error)
	Edit(ctx context.Context, actor domain.User, messageID, body string, expectedVersion int) (*domain.Message, error)
	Delete(ctx context.Context, actor domain.User, messageID string) error
	MarkRead(ctx context.Context, actor domain.User, messageIDs []string) (int64, error)
	Unread(ctx context.Context, actor domain.User, page, pageSize int) ([]domain.Message, int64, error)
	UnreadCount(ctx context.Context, actor domain.User) (int64, error)
	Get(ctx context.Context, actor domain.User, messageID string) (*domain.Message, error)
	History(ctx context.Context, actor domain.User, messageID string) ([]domain.MessageHistory, error)
	Thread(ctx context.Context, actor domain.User, messageID string) (*services.ThreadNode, error)
	Search(ctx context.Context, actor domain.User, conversationID, query string, k int) ([]services.SearchHit, error)
}

// NotificationService lists and acknowledges notifications.
type NotificationService interface {
	List(ctx context.Context, actor domain.User, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error)
	MarkRead(ctx context.Context, actor domain.User, ids []string) (int64, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the messaging API.
type Handlers struct {
	users UserService
	convs ConversationService
	msgs  MessageService
	notes NotificationService
}

// New constructs a Handlers instance bound to the given services.
func New(users UserService, convs ConversationService, msgs MessageService, notes NotificationService) *Handlers {
	return &Handlers{users: users, convs: convs, msgs: msgs, notes: notes}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// actor returns the user resolved by middleware.Identity. Routes that need
// one sit behind middleware.RequireUser; the zero user is denied by the
// services anyway.
func actor(c *gin.Context) domain.User {
	u, _ := middleware.CurrentUser(c)
	return u
}
