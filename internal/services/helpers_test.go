package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// fixture wires every service over one database.
type fixture struct {
	db    *gorm.DB
	users *UserService
	convs *ConversationService
	msgs  *MessageService
	notes *NotificationService
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	pub := &recordingPublisher{}
	notes := NewNotificationService(db, pub)
	return &fixture{
		db:    db,
		users: NewUserService(db),
		convs: NewConversationService(db),
		msgs:  NewMessageService(db, 0, notes),
		notes: notes,
		pub:   pub,
	}
}

func (f *fixture) user(t *testing.T, name string, role domain.Role) domain.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), name, name+"@example.com", role)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return *u
}

func (f *fixture) conversation(t *testing.T, creator domain.User, others ...domain.User) *domain.Conversation {
	t.Helper()
	ids := make([]string, len(others))
	for i, u := range others {
		ids[i] = u.ID
	}
	c, err := f.convs.Create(context.Background(), creator, ids)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

func (f *fixture) send(t *testing.T, actor domain.User, c *domain.Conversation, body string) *domain.Message {
	t.Helper()
	m, err := f.msgs.Send(context.Background(), actor, c.ID, body, nil)
	if err != nil {
		t.Fatalf("send %q: %v", body, err)
	}
	return m
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Reason == "" {
		t.Fatalf("expected *Error with a reason, got %#v", err)
	}
}

func count(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// newBareDB opens an empty database with no tables.
func newBareDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:bare_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}
