package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

func TestGetIdempotency_Misses(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	now := time.Now().UTC()

	stale := &domain.Idempotency{
		ID: "stale", UserID: "u1", ConversationID: "c1", Key: "old",
		MessageID: "m0", Status: 201, ExpiresAt: now.Add(-time.Minute),
	}
	if err := db.Create(stale).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, tc := range []struct{ name, conv, key string }{
		{"blank conversation", "  ", "old"},
		{"expired", "c1", "old"},
		{"unknown key", "c1", "never-used"},
	} {
		if rec, err := GetIdempotency(ctx, db, "u1", tc.conv, tc.key, now); rec != nil || !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: got (%v, %v), want ErrNotFound", tc.name, rec, err)
		}
	}

	n, err := PurgeExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredIdempotency = %d, %v; want 1", n, err)
	}
}

func TestCreateIdempotency_ScopedPerConversation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, &domain.Idempotency{})
	before := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "u9", "c9", "k9", "m9", 201, time.Hour)
	if err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	if rec.ID == "" || rec.MessageID != "m9" || rec.ExpiresAt.Sub(before) < time.Hour-time.Second {
		t.Fatalf("record = %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u9", "c9", "k9", time.Now().UTC())
	if err != nil || got.ID != rec.ID {
		t.Fatalf("GetIdempotency = %+v, %v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, "u9", "c9", "k9", "other", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("reused key: err = %v, want ErrDuplicate", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u9", "c10", "k9", "m10", 201, time.Hour); err != nil {
		t.Fatalf("same key, other conversation: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u8", "c9", "k9", "m11", 201, time.Hour); err != nil {
		t.Fatalf("same key, other user: %v", err)
	}
}

func TestCreateIdempotency_StorageError(t *testing.T) {
	_, err := CreateIdempotency(context.Background(), newTestDB(t), "u", "c", "k", "m", 201, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("missing table: err = %v", err)
	}
}
