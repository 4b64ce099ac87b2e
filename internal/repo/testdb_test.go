package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

// newTestDB opens a unique in-memory database and migrates only the given
// models, so tests can exercise missing-table error paths.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// newSchemaDB opens a database with the full schema.
func newSchemaDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:        uuid.NewString(),
		Username:  name,
		Email:     name + "@example.com",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func seedConversation(t *testing.T, db *gorm.DB, users ...*domain.User) *domain.Conversation {
	t.Helper()
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	c, err := CreateConversation(context.Background(), db, ids[0], ids)
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return c
}

func seedMessage(t *testing.T, db *gorm.DB, c *domain.Conversation, sender *domain.User, body string, at time.Time, parent *string) *domain.Message {
	t.Helper()
	seq, err := NextSeq(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	m, err := CreateMessage(context.Background(), db, NewMessage{
		ConversationID: c.ID,
		SenderID:       sender.ID,
		ParentID:       parent,
		Body:           body,
		SentAt:         at,
		Seq:            seq,
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}
