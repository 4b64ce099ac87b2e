package services

import (
	"context"
	"strings"
	"testing"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

func TestUserService_Register_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name, username, email string
		role                  domain.Role
	}{
		{"empty username", "  ", "a@example.com", domain.RoleGuest},
		{"long username", strings.Repeat("x", 151), "a@example.com", domain.RoleGuest},
		{"bad email", "alice", "not-an-email", domain.RoleGuest},
		{"display-name email", "alice", "Alice <a@example.com>", domain.RoleGuest},
		{"empty email", "alice", "  ", domain.RoleGuest},
		{"long email", "alice", strings.Repeat("a", 250) + "@example.com", domain.RoleGuest},
		{"unknown role", "alice", "a@example.com", domain.Role("root")},
	}
	for _, tc := range cases {
		_, err := f.users.Register(ctx, tc.username, tc.email, tc.role)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		wantKind(t, err, ErrValidation)
	}
}

func TestUserService_Register_DefaultsAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.Register(ctx, " alice ", "Alice@Example.com", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "alice" || u.Email != "alice@example.com" || u.Role != domain.RoleGuest {
		t.Fatalf("unexpected user: %+v", u)
	}

	_, err = f.users.Register(ctx, "alice", "other@example.com", domain.RoleHost)
	wantKind(t, err, ErrConflict)

	got, err := f.users.Get(ctx, u.ID)
	if err != nil || got.ID != u.ID {
		t.Fatalf("Get: %+v err=%v", got, err)
	}
	_, err = f.users.Get(ctx, "missing")
	wantKind(t, err, ErrNotFound)
}

func TestUserService_List_PrivilegedVsSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", domain.RoleAdmin)
	mod := f.user(t, "mod", domain.RoleModerator)
	guest := f.user(t, "guest", domain.RoleGuest)
	f.user(t, "host", domain.RoleHost)

	all, total, err := f.users.List(ctx, admin, UserFilter{}, 1, 10)
	if err != nil || total != 4 || len(all) != 4 {
		t.Fatalf("admin list: total=%d len=%d err=%v", total, len(all), err)
	}
	guests, total, err := f.users.List(ctx, mod, UserFilter{Role: domain.RoleGuest}, 1, 10)
	if err != nil || total != 1 || guests[0].ID != guest.ID {
		t.Fatalf("moderator role filter: %+v err=%v", guests, err)
	}

	self, total, err := f.users.List(ctx, guest, UserFilter{}, 1, 10)
	if err != nil || total != 1 || len(self) != 1 || self[0].ID != guest.ID {
		t.Fatalf("guest should see only themselves: %+v err=%v", self, err)
	}

	_, _, err = f.users.List(ctx, admin, UserFilter{Role: "root"}, 1, 10)
	wantKind(t, err, ErrValidation)
	_, _, err = f.users.List(ctx, domain.User{}, UserFilter{}, 1, 10)
	wantKind(t, err, ErrPermission)
}

func TestUserService_Delete_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.user(t, "admin", domain.RoleAdmin)
	alice := f.user(t, "alice", domain.RoleGuest)
	bob := f.user(t, "bob", domain.RoleGuest)
	carol := f.user(t, "carol", domain.RoleGuest)
	conv := f.conversation(t, alice, bob, carol)
	m := f.send(t, alice, conv, "hello")

	wantKind(t, f.users.Delete(ctx, bob, alice.ID), ErrPermission)

	if err := f.users.Delete(ctx, alice, alice.ID); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if n := count(t, f.db, &domain.Message{}, "id = ?", m.ID); n != 0 {
		t.Fatalf("expected alice's message removed")
	}
	if n := count(t, f.db, &domain.Notification{}, "message_id = ?", m.ID); n != 0 {
		t.Fatalf("expected notifications removed, got %d", n)
	}
	if n := count(t, f.db, &domain.Receipt{}, "message_id = ?", m.ID); n != 0 {
		t.Fatalf("expected receipts removed, got %d", n)
	}

	if err := f.users.Delete(ctx, admin, bob.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	wantKind(t, f.users.Delete(ctx, admin, bob.ID), ErrNotFound)
}

func TestUserService_EnsureAdmin_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, created, err := f.users.EnsureAdmin(ctx, "root", "root@example.com")
	if err != nil || !created {
		t.Fatalf("first EnsureAdmin: created=%v err=%v", created, err)
	}
	if u.Role != domain.RoleAdmin {
		t.Fatalf("role = %q", u.Role)
	}

	u, created, err = f.users.EnsureAdmin(ctx, "root", "root@example.com")
	if err != nil || created || u != nil {
		t.Fatalf("second EnsureAdmin: u=%v created=%v err=%v", u, created, err)
	}

	if _, _, err := f.users.EnsureAdmin(ctx, "root2", "nope"); err == nil {
		t.Fatalf("expected validation error for bad email")
	}
}
