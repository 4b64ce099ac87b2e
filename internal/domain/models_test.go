package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():           "users",
		(Conversation{}).TableName():   "conversations",
		(Participant{}).TableName():    "conversation_participants",
		(Message{}).TableName():        "messages",
		(MessageHistory{}).TableName(): "message_history",
		(Receipt{}).TableName():        "message_receipts",
		(Notification{}).TableName():   "notifications",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestRole_ValidAndParse(t *testing.T) {
	for _, r := range Roles {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	if Role("owner").Valid() {
		t.Fatalf("unknown role must be invalid")
	}
	if r, ok := ParseRole(""); !ok || r != RoleGuest {
		t.Fatalf("empty role should default to guest, got %q ok=%v", r, ok)
	}
	if _, ok := ParseRole("superuser"); ok {
		t.Fatalf("ParseRole should reject unknown roles")
	}
}

func TestMigrations_Indexes_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	all := []any{&User{}, &Conversation{}, &Participant{}, &Message{}, &MessageHistory{}, &Receipt{}, &Notification{}}
	if err := db.AutoMigrate(all...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range all {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&Message{}, "idx_conv_msgs") {
		t.Fatalf("expected index idx_conv_msgs on messages")
	}
	if !m.HasIndex(&User{}, "ux_users_username") || !m.HasIndex(&User{}, "ux_users_email") {
		t.Fatalf("expected unique indexes on users")
	}

	now := time.Now().UTC()
	users := []User{
		{ID: "u1", Username: "alice", Email: "alice@example.com", Role: RoleHost, CreatedAt: now},
		{ID: "u2", Username: "bob", Email: "bob@example.com", Role: RoleGuest, CreatedAt: now},
	}
	if err := db.Create(&users).Error; err != nil {
		t.Fatalf("insert users: %v", err)
	}
	if err := db.Create(&User{ID: "u3", Username: "eve", Email: "eve@example.com", Role: "root"}).Error; err == nil {
		t.Fatalf("expected CHECK constraint to reject unknown role")
	}

	conv := &Conversation{ID: "c1", CreatedBy: "u1", CreatedAt: now}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	msg := &Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Body: "hi", SentAt: now, Seq: 1, Version: 1}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	rows := []any{
		&MessageHistory{ID: "h1", MessageID: "m1", OldBody: "hey", EditorID: "u1", EditedAt: now},
		&Receipt{MessageID: "m1", UserID: "u2"},
		&Notification{ID: "n1", UserID: "u2", MessageID: "m1", CreatedAt: now},
	}
	for _, r := range rows {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("insert %T: %v", r, err)
		}
	}

	// CASCADE: deleting the message removes dependent rows.
	if err := db.Delete(&Message{}, "id = ?", "m1").Error; err != nil {
		t.Fatalf("delete m1: %v", err)
	}
	for _, tbl := range []any{&MessageHistory{}, &Receipt{}, &Notification{}} {
		var cnt int64
		if err := db.Model(tbl).Where("message_id = ?", "m1").Count(&cnt).Error; err != nil {
			t.Fatalf("count %T: %v", tbl, err)
		}
		if cnt != 0 {
			t.Fatalf("expected %T rows to cascade-delete, got %d", tbl, cnt)
		}
	}
}
