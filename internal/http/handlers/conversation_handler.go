// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversations and their messages:
//   - POST   /conversations                               (create)
//   - GET    /conversations                               (list mine)
//   - GET    /conversations/{id}                          (get)
//   - POST   /conversations/{id}/participants             (add member)
//   - DELETE /conversations/{id}/participants/{user_id}   (remove member)
//   - POST   /conversations/{id}/messages                 (send)
//   - GET    /conversations/{id}/messages                 (list, ETag aware)
//   - GET    /conversations/{id}/search                   (ranked search)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous send with
// the same (user, conversation, key) is recorded, the handler returns that
// message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/http/middleware"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/services"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

const (
	defaultSearchK = 10
	maxSearchK     = 50
)

//
// DTOs
//

// CreateConversationRequest lists the members of a new conversation. The
// caller is added automatically.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" binding:"required,min=1"`
}

// AddParticipantRequest names the user to add.
type AddParticipantRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ListConversationsResponse wraps a page of conversation summaries.
type ListConversationsResponse struct {
	Conversations []repo.ConversationSummary `json:"conversations"`
	Pagination    Pagination                 `json:"pagination"`
}

// PostMessageRequest is the JSON payload for sending a message.
//
// Body is normalized by the service (NFC, trimmed) and capped at the
// configured rune limit.
type PostMessageRequest struct {
	Body string `json:"body" binding:"required" example:"Lunch on Friday?"`
	// ParentID makes the message a reply inside the same conversation.
	ParentID *string `json:"parent_id,omitempty"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// SearchResponse holds ranked hits, best first.
type SearchResponse struct {
	Hits []services.SearchHit `json:"hits"`
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Create a conversation
// @Description Creates a conversation between the caller and the listed users (at least two members in total).
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       body       body    handlers.CreateConversationRequest  true  "Members"
// @Success     201  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Too few or unknown participants"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "participant_ids required")
		return
	}
	conv, err := h.convs.Create(c.Request.Context(), actor(c), req.ParticipantIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List my conversations
// @Description Returns the caller's conversations, newest first, with message counts and the latest message.
// @Tags        Conversations
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListConversationsResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.convs.ListForUser(c.Request.Context(), actor(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Pagination: newPagination(page, pageSize, total)})
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation
// @Tags        Conversations
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Conversation ID"
// @Success     200  {object} domain.Conversation
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	conv, err := h.convs.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// AddParticipant godoc
// @ID          addParticipant
// @Summary     Add a participant
// @Description Adds a member. Adding an existing member is a no-op.
// @Tags        Conversations
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Conversation ID"
// @Param       body       body    handlers.AddParticipantRequest  true  "User to add"
// @Success     200  {object} domain.Conversation
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Conversation or user not found"
// @Router      /conversations/{id}/participants [post]
func (h *Handlers) AddParticipant(c *gin.Context) {
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	conv, err := h.convs.AddParticipant(c.Request.Context(), actor(c), c.Param("id"), req.UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// RemoveParticipant godoc
// @ID          removeParticipant
// @Summary     Remove a participant
// @Description Removes a member. A conversation never drops below two members this way.
// @Tags        Conversations
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Conversation ID"
// @Param       user_id    path    string  true  "User to remove"
// @Success     200  {object} domain.Conversation
// @Failure     400  {object} handlers.ErrorResponse "Would leave fewer than two members"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /conversations/{id}/participants/{user_id} [delete]
func (h *Handlers) RemoveParticipant(c *gin.Context) {
	conv, err := h.convs.RemoveParticipant(c.Request.Context(), actor(c), c.Param("id"), c.Param("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Posts a message to the conversation and notifies every other participant.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Acting user (when JWT is disabled)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       id               path    string  true  "Conversation ID"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  domain.Message          "Created (or replayed)"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	if req.ParentID != nil && strings.TrimSpace(*req.ParentID) == "" {
		req.ParentID = nil
	}

	key, _ := middleware.GetIdempotencyKey(c)
	m, replayed, err := h.msgs.SendIdempotent(c.Request.Context(), actor(c), c.Param("id"), req.Body, req.ParentID, key)
	if err != nil {
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusCreated, m)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns a page of messages in send order. Responses carry a weak ETag; a matching If-None-Match yields 304.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID  header string  false "Acting user (when JWT is disabled)"
// @Param       id         path   string  true  "Conversation ID"
// @Param       sender_id  query  string  false "Only messages from this sender"
// @Param       after      query  string  false "Sent at or after (RFC3339)"
// @Param       before     query  string  false "Sent before (RFC3339)"
// @Param       q          query  string  false "Case-insensitive body substring"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")
	me := actor(c)

	f, err := messageFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	// Stats doubles as the read-access check.
	st, err := h.convs.Stats(ctx, me, convID)
	if err != nil {
		failErr(c, err)
		return
	}
	etag := messagesETag(convID, st, c.Request.URL.RawQuery)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.convs.Messages(ctx, me, convID, f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: newPagination(page, pageSize, total)})
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search a conversation
// @Description Ranks the conversation's messages by token overlap with q.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header string  false "Acting user (when JWT is disabled)"
// @Param       id         path   string  true  "Conversation ID"
// @Param       q          query  string  true  "Query text"
// @Param       k          query  int     false "Maximum hits" minimum(1) maximum(50) default(10)
// @Success     200  {object} handlers.SearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Empty query"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Router      /conversations/{id}/search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	k := utils.AtoiDefault(c.Query("k"), defaultSearchK)
	if k < 1 {
		k = 1
	}
	if k > maxSearchK {
		k = maxSearchK
	}
	hits, err := h.msgs.Search(c.Request.Context(), actor(c), c.Param("id"), c.Query("q"), k)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Hits: hits})
}

//
// Helpers
//

// messageFilter reads the list filters from the query string.
func messageFilter(c *gin.Context) (services.MessageFilter, error) {
	f := services.MessageFilter{
		SenderID: strings.TrimSpace(c.Query("sender_id")),
		Contains: strings.TrimSpace(c.Query("q")),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"after", &f.SentAfter}, {"before", &f.SentBefore}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC3339 timestamp", p.name)
		}
		t = t.UTC()
		*p.dst = &t
	}
	return f, nil
}

// messagesETag derives a weak validator from the conversation's message
// stats and the query string, so any send, edit, delete or read changes it.
func messagesETag(convID string, st repo.MessageStats, rawQuery string) string {
	var latest int64
	if st.Latest != nil {
		latest = st.Latest.UnixNano()
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(rawQuery))
	return fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d:%08x"`, convID, st.Count, st.Versions, st.Read, latest, h.Sum32())
}
