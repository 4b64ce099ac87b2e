// User HTTP handlers.
//
// This file exposes REST endpoints for identities:
//   - POST   /users        (register)
//   - GET    /users        (list; others see only themselves)
//   - GET    /users/me     (current user)
//   - DELETE /users/{id}   (delete self, or any user as admin/moderator)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/services"
)

// RegisterUserRequest is the JSON payload for creating a user.
type RegisterUserRequest struct {
	Username string `json:"username" binding:"required" example:"alice"`
	Email    string `json:"email"    binding:"required,email" example:"alice@example.com"`
	// Role defaults to guest. Moderator and admin require an admin caller.
	Role string `json:"role" example:"guest"`
}

// ListUsersResponse wraps a page of users.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// RegisterUser godoc
// @ID          registerUser
// @Summary     Register a user
// @Description Creates a user. Anyone may register as guest or host; moderator and admin accounts can only be created by an admin.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body     handlers.RegisterUserRequest  true  "User payload"
// @Success     201   {object} domain.User
// @Failure     400   {object} handlers.ErrorResponse "Bad request"
// @Failure     403   {object} handlers.ErrorResponse "Privileged role requires an admin"
// @Failure     409   {object} handlers.ErrorResponse "Username or email taken"
// @Failure     500   {object} handlers.ErrorResponse "Internal error"
// @Router      /users [post]
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and a valid email are required")
		return
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if (role == domain.RoleModerator || role == domain.RoleAdmin) && actor(c).Role != domain.RoleAdmin {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only an admin may create "+string(role)+" accounts")
		return
	}

	u, err := h.users.Register(c.Request.Context(), req.Username, req.Email, role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Description Returns a page of users, newest first, optionally filtered by role and username substring.
// @Description Callers that are not admin or moderator receive only their own record.
// @Tags        Users
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       role       query   string  false "Exact role"  Enums(guest, host, moderator, admin)
// @Param       username   query   string  false "Case-insensitive username substring"
// @Param       page       query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListUsersResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	var role domain.Role
	if raw := strings.TrimSpace(c.Query("role")); raw != "" {
		r, valid := domain.ParseRole(strings.ToLower(raw))
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown role")
			return
		}
		role = r
	}
	page, pageSize := clampPagination(c)

	items, total, err := h.users.List(c.Request.Context(), actor(c), services.UserFilter{Role: role, Username: c.Query("username")}, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: items, Pagination: newPagination(page, pageSize, total)})
}

// Me godoc
// @ID          me
// @Summary     Current user
// @Tags        Users
// @Produce     json
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Success     200  {object} domain.User
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	ok(c, http.StatusOK, actor(c))
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Description Deletes the user with their memberships, sent messages, receipts and notifications.
// @Tags        Users
// @Param       X-User-ID  header  string  false "Acting user (when JWT is disabled)"
// @Param       id         path    string  true  "User ID"
// @Success     204  {string} string "No Content"
// @Failure     401  {object} handlers.ErrorResponse "Unauthenticated"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
