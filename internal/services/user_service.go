// Package services – UserService
//
// This file implements the identity store: registration, lookup, privileged
// listing and the cascading maintenance delete.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/internal/access"
	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/utils"
)

const maxUsernameRunes = 150

// validate checks values independently of any transport binding.
var validate = validator.New()

// UserFilter narrows List. Zero values disable a predicate.
type UserFilter struct {
	Role     domain.Role
	Username string
}

// UserService manages users.
type UserService struct {
	DB *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService { return &UserService{DB: db} }

func (s *UserService) tracer() trace.Tracer { return otel.Tracer("services/UserService") }

// Register creates a user. The username must be non-empty, the email must be
// a bare address and the role must be known (empty means guest). Username or
// email collisions yield ErrConflict.
func (s *UserService) Register(ctx context.Context, username, email string, role domain.Role) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "Register")
	defer span.End()

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case username == "":
		return nil, validationf("username is required")
	case utf8.RuneCountInString(username) > maxUsernameRunes:
		return nil, validationf("username exceeds %d characters", maxUsernameRunes)
	}
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return nil, validationf("email %q is not a valid address", email)
	}
	r, ok := domain.ParseRole(string(role))
	if !ok {
		return nil, validationf("unknown role %q", role)
	}

	u, err := repo.CreateUser(ctx, s.DB, username, strings.ToLower(email), r)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, conflictf("username or email already registered")
	}
	if err != nil {
		return nil, storageErr(err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.tracer().Start(ctx, "Get", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return u, nil
}

// EnsureAdmin creates an admin account unless the username or email is
// already taken. created reports whether a new row was written.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email string) (u *domain.User, created bool, err error) {
	u, err = s.Register(ctx, username, email, domain.RoleAdmin)
	if errors.Is(err, ErrConflict) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// List returns users matching f. Admins and moderators see everyone; other
// actors receive only themselves.
func (s *UserService) List(ctx context.Context, actor domain.User, f UserFilter, page, pageSize int) ([]domain.User, int64, error) {
	ctx, span := s.tracer().Start(ctx, "List", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()

	if actor.ID == "" {
		return nil, 0, permissionf("authentication required")
	}
	if !access.Can(actor, access.ListUsers, access.Target{}) {
		self, err := s.Get(ctx, actor.ID)
		if err != nil {
			return nil, 0, err
		}
		return []domain.User{*self}, 1, nil
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, validationf("unknown role %q", f.Role)
	}

	offset, limit := utils.Normalize(page, pageSize)
	items, total, err := repo.ListUsers(ctx, s.DB, repo.UserFilter{Role: f.Role, Username: f.Username}, offset, limit)
	if err != nil {
		return nil, 0, storageErr(err)
	}
	return items, total, nil
}

// Delete removes a user and everything that references them. Actors may
// delete themselves; admins and moderators may delete anyone.
//
// This is a maintenance operation: conversations the user belonged to keep
// their remaining members even if fewer than two are left.
func (s *UserService) Delete(ctx context.Context, actor domain.User, userID string) error {
	ctx, span := s.tracer().Start(ctx, "Delete", trace.WithAttributes(
		attribute.String("user.id", actor.ID),
		attribute.String("subject.id", userID),
	))
	defer span.End()

	if !access.Can(actor, access.DeleteUser, access.Target{SubjectID: userID}) {
		return permissionf("cannot delete user %s", userID)
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return repo.DeleteUser(ctx, tx, userID)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("user")
	}
	return storageErr(err)
}
