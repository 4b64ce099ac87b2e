// Notification HTTP handlers.
//
//   - GET  /notifications        (list mine, optionally unread only)
//   - POST /notifications/read   (acknowledge)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// ListNotificationsResponse wraps a page of notifications.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// MarkNotificationsRequest lists notifications to acknowledge.
type MarkNotificationsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List my notifications
// @Tags        Notifications
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       unread     query   bool    false "Only unread notifications"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListNotificationsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	unread := false
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unread must be a boolean")
			return
		}
		unread = v
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.notes.List(c.Request.Context(), actor(c), unread, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{Notifications: items, Pagination: newPagination(page, pageSize, total)})
}

// MarkNotificationsRead godoc
// @ID          markNotificationsRead
// @Summary     Acknowledge notifications
// @Description Marks the caller's notifications read. Ids owned by other users are ignored.
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       body       body    handlers.MarkNotificationsRequest  true  "Notification ids"
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /notifications/read [post]
func (h *Handlers) MarkNotificationsRead(c *gin.Context) {
	var req MarkNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}
	n, err := h.notes.MarkRead(c.Request.Context(), actor(c), req.IDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: n})
}
