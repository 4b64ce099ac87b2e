// Message HTTP handlers.
//
// This file exposes REST endpoints for individual messages and read state:
//   - GET    /messages/{id}           (get)
//   - PATCH  /messages/{id}           (edit, sender only)
//   - DELETE /messages/{id}           (delete, sender only)
//   - GET    /messages/{id}/history   (prior bodies, newest first)
//   - GET    /messages/{id}/thread    (reply tree)
//   - POST   /messages/read           (mark read)
//   - GET    /messages/unread         (my unread messages)
//
// Send and list live in conversation_handler.go because they are scoped to a
// conversation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

//
// DTOs
//

// EditMessageRequest replaces a message body.
type EditMessageRequest struct {
	Body string `json:"body" binding:"required" example:"Lunch on Saturday?"`
	// Version is the version the client last saw. Zero skips the check; a
	// stale value yields 409.
	Version int `json:"version" example:"1"`
}

// MarkReadRequest lists messages to mark as read.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required,min=1"`
}

// MarkReadResponse reports how many receipts changed.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

// HistoryResponse lists the prior bodies of a message.
type HistoryResponse struct {
	History []domain.MessageHistory `json:"history"`
}

// UnreadResponse is a page of unread messages plus the overall count.
type UnreadResponse struct {
	Messages    []domain.Message `json:"messages"`
	UnreadCount int64            `json:"unread_count"`
	Pagination  Pagination       `json:"pagination"`
}

//
// Handlers
//

// GetMessage godoc
// @ID          getMessage
// @Summary     Get a message
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Message ID"
// @Success     200  {object} domain.Message
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	m, err := h.msgs.Get(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message
// @Description Replaces the body and records the previous one in the edit history. Only the sender may edit.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Message ID"
// @Param       body       body    handlers.EditMessageRequest  true  "New body"
// @Success     200  {object} domain.Message
// @Failure     400  {object} handlers.ErrorResponse "Invalid body"
// @Failure     403  {object} handlers.ErrorResponse "Not the sender"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Version conflict"
// @Router      /messages/{id} [patch]
func (h *Handlers) EditMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		return
	}
	if req.Version < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "version must not be negative")
		return
	}
	m, err := h.msgs.Edit(c.Request.Context(), actor(c), c.Param("id"), req.Body, req.Version)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Deletes the message with its history, receipts and notifications. Replies are kept and detached.
// @Tags        Messages
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Message ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the sender"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	if err := h.msgs.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// MessageHistory godoc
// @ID          messageHistory
// @Summary     Edit history
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Message ID"
// @Success     200  {object} handlers.HistoryResponse
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id}/history [get]
func (h *Handlers) MessageHistory(c *gin.Context) {
	hs, err := h.msgs.History(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{History: hs})
}

// MessageThread godoc
// @ID          messageThread
// @Summary     Reply thread
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "Root message ID"
// @Success     200  {object} services.ThreadNode
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /messages/{id}/thread [get]
func (h *Handlers) MessageThread(c *gin.Context) {
	node, err := h.msgs.Thread(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, node)
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark messages read
// @Description Marks the caller's receipts (and matching notifications) read. Unknown ids and messages not addressed to the caller are skipped.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       body       body    handlers.MarkReadRequest  true  "Message ids"
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /messages/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_ids required")
		return
	}
	n, err := h.msgs.MarkRead(c.Request.Context(), actor(c), req.MessageIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: n})
}

// UnreadMessages godoc
// @ID          unreadMessages
// @Summary     My unread messages
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.UnreadResponse
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /messages/unread [get]
func (h *Handlers) UnreadMessages(c *gin.Context) {
	ctx := c.Request.Context()
	me := actor(c)
	page, pageSize := clampPagination(c)

	items, total, err := h.msgs.Unread(ctx, me, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	count, err := h.msgs.UnreadCount(ctx, me)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, UnreadResponse{Messages: items, UnreadCount: count, Pagination: newPagination(page, pageSize, total)})
}
