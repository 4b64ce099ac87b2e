package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-core/internal/config"
	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/events"
	"github.com/tbourn/go-messaging-core/internal/http/handlers"
	"github.com/tbourn/go-messaging-core/internal/http/middleware"
	"github.com/tbourn/go-messaging-core/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        1000,
		RateBurst:      1000,
		CORS:           config.CORSConfig{},
		Security:       config.SecurityConfig{EnableHSTS: false},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		MaxBodyRunes:   1000,
		IdempotencyTTL: time.Hour,
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, events.Noop(), cfg)
	return r, db
}

// do sends a JSON request as user (empty means anonymous).
func do(t *testing.T, r http.Handler, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func register(t *testing.T, r http.Handler, name string) domain.User {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/users", "", map[string]string{
		"username": name, "email": name + "@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s = %d %s", name, w.Code, w.Body.String())
	}
	var u domain.User
	decode(t, w, &u)
	return u
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	// /health works
	w := do(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	var health map[string]string
	decode(t, w, &health)
	if health["events"] != "noop" {
		t.Fatalf("events mode = %q", health["events"])
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = do(t, r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w = do(t, r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w = do(t, r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ := newTestRouter(t, cfg)

	w := do(t, r, http.MethodGet, "/health", "", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_SwaggerToggle(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	if w := do(t, r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: expected 404, got %d", w.Code)
	}

	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ = newTestRouter(t, cfg)
	w := do(t, r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("swagger enabled: expected 200, got %d", w.Code)
	}
	var doc map[string]any
	decode(t, w, &doc)
	if doc["basePath"] != "/api/v1" {
		t.Fatalf("basePath = %v", doc["basePath"])
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestIdentity_AnonymousAndUnknownUsers(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := do(t, r, http.MethodGet, "/api/v1/conversations", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: expected 401, got %d", w.Code)
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeUnauthorized {
		t.Fatalf("anonymous list body: %s (%v)", w.Body.String(), err)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/users/me", uuid.NewString(), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", w.Code)
	}

	alice := register(t, r, "alice")
	w = do(t, r, http.MethodGet, "/api/v1/users/me", alice.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d", w.Code)
	}
	var me domain.User
	decode(t, w, &me)
	if me.ID != alice.ID || me.Username != "alice" {
		t.Fatalf("me = %+v", me)
	}
}

func TestIdentity_JWTMode(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{JWTEnabled: true, JWTSecret: "0123456789abcdef-secret"}
	r, _ := newTestRouter(t, cfg)

	alice := register(t, r, "alice")

	// Header identity is ignored once JWT is on.
	if w := do(t, r, http.MethodGet, "/api/v1/users/me", alice.ID, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("header identity under JWT: expected 401, got %d", w.Code)
	}

	tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), alice.ID, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	w := do(t, r, http.MethodGet, "/api/v1/users/me", "", nil, "Authorization", "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer me = %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterUser_PrivilegedRoleNeedsAdmin(t *testing.T) {
	r, db := newTestRouter(t, testConfig())

	body := map[string]string{"username": "mod", "email": "mod@example.com", "role": "moderator"}
	if w := do(t, r, http.MethodPost, "/api/v1/users", "", body); w.Code != http.StatusForbidden {
		t.Fatalf("anonymous moderator signup: expected 403, got %d", w.Code)
	}

	admin, err := repo.CreateUser(context.Background(), db, "root", "root@example.com", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	w := do(t, r, http.MethodPost, "/api/v1/users", admin.ID, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("admin creates moderator = %d %s", w.Code, w.Body.String())
	}

	// duplicate username → 409
	if w := do(t, r, http.MethodPost, "/api/v1/users", admin.ID, body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}
}

func TestMessagingFlow_EndToEnd(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := register(t, r, "alice")
	bob := register(t, r, "bob")
	carol := register(t, r, "carol")

	// Create conversation alice+bob.
	w := do(t, r, http.MethodPost, "/api/v1/conversations", alice.ID, map[string]any{"participant_ids": []string{bob.ID}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation = %d %s", w.Code, w.Body.String())
	}
	var conv domain.Conversation
	decode(t, w, &conv)
	if len(conv.Participants) != 2 {
		t.Fatalf("participants = %d", len(conv.Participants))
	}
	msgsPath := "/api/v1/conversations/" + conv.ID + "/messages"

	// Carol is not a member.
	if w := do(t, r, http.MethodPost, msgsPath, carol.ID, map[string]string{"body": "hi"}); w.Code != http.StatusForbidden {
		t.Fatalf("outsider send: expected 403, got %d", w.Code)
	}

	// Send with an idempotency key, then replay it.
	w = do(t, r, http.MethodPost, msgsPath, alice.ID, map[string]string{"body": "Lunch on Friday?"}, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("send = %d %s", w.Code, w.Body.String())
	}
	var sent domain.Message
	decode(t, w, &sent)
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first send must not be a replay")
	}

	w = do(t, r, http.MethodPost, msgsPath, alice.ID, map[string]string{"body": "Lunch on Friday?"}, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay = %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	var replay domain.Message
	decode(t, w, &replay)
	if replay.ID != sent.ID {
		t.Fatalf("replay returned %s, want %s", replay.ID, sent.ID)
	}

	// Listing carries an ETag; If-None-Match short-circuits.
	w = do(t, r, http.MethodGet, msgsPath, bob.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	var list struct {
		Messages []domain.Message `json:"messages"`
	}
	decode(t, w, &list)
	if len(list.Messages) != 1 {
		t.Fatalf("messages = %d", len(list.Messages))
	}
	if w := do(t, r, http.MethodGet, msgsPath, bob.ID, nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("conditional list: expected 304, got %d", w.Code)
	}

	// Bob has one unread message and one notification.
	w = do(t, r, http.MethodGet, "/api/v1/messages/unread", bob.ID, nil)
	var unread struct {
		UnreadCount int64 `json:"unread_count"`
	}
	decode(t, w, &unread)
	if unread.UnreadCount != 1 {
		t.Fatalf("unread_count = %d", unread.UnreadCount)
	}
	w = do(t, r, http.MethodGet, "/api/v1/notifications?unread=true", bob.ID, nil)
	var notes struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	decode(t, w, &notes)
	if len(notes.Notifications) != 1 || notes.Notifications[0].MessageID != sent.ID {
		t.Fatalf("notifications = %+v", notes.Notifications)
	}

	// Mark read: one receipt changes, then none. The ETag moves.
	w = do(t, r, http.MethodPost, "/api/v1/messages/read", bob.ID, map[string]any{"message_ids": []string{sent.ID}})
	var marked struct {
		Marked int64 `json:"marked"`
	}
	decode(t, w, &marked)
	if marked.Marked != 1 {
		t.Fatalf("marked = %d", marked.Marked)
	}
	w = do(t, r, http.MethodPost, "/api/v1/messages/read", bob.ID, map[string]any{"message_ids": []string{sent.ID}})
	decode(t, w, &marked)
	if marked.Marked != 0 {
		t.Fatalf("second mark = %d", marked.Marked)
	}
	if w := do(t, r, http.MethodGet, msgsPath, bob.ID, nil, "If-None-Match", etag); w.Code != http.StatusOK {
		t.Fatalf("etag after read: expected 200, got %d", w.Code)
	}

	// Edit: bob cannot, alice can; a stale version conflicts.
	msgPath := "/api/v1/messages/" + sent.ID
	if w := do(t, r, http.MethodPatch, msgPath, bob.ID, map[string]any{"body": "mine now"}); w.Code != http.StatusForbidden {
		t.Fatalf("non-sender edit: expected 403, got %d", w.Code)
	}
	w = do(t, r, http.MethodPatch, msgPath, alice.ID, map[string]any{"body": "Lunch on Saturday?", "version": 1})
	if w.Code != http.StatusOK {
		t.Fatalf("edit = %d %s", w.Code, w.Body.String())
	}
	var edited domain.Message
	decode(t, w, &edited)
	if !edited.Edited || edited.Version != 2 {
		t.Fatalf("edited = %+v", edited)
	}
	if w := do(t, r, http.MethodPatch, msgPath, alice.ID, map[string]any{"body": "again", "version": 1}); w.Code != http.StatusConflict {
		t.Fatalf("stale edit: expected 409, got %d", w.Code)
	}

	w = do(t, r, http.MethodGet, msgPath+"/history", bob.ID, nil)
	var hist struct {
		History []domain.MessageHistory `json:"history"`
	}
	decode(t, w, &hist)
	if len(hist.History) != 1 || hist.History[0].OldBody != "Lunch on Friday?" {
		t.Fatalf("history = %+v", hist.History)
	}

	// Reply and thread.
	parent := sent.ID
	w = do(t, r, http.MethodPost, msgsPath, bob.ID, map[string]any{"body": "Sure", "parent_id": parent})
	if w.Code != http.StatusCreated {
		t.Fatalf("reply = %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodGet, msgPath+"/thread", alice.ID, nil)
	var thread struct {
		Replies []struct {
			Message domain.Message `json:"message"`
		} `json:"replies"`
	}
	decode(t, w, &thread)
	if len(thread.Replies) != 1 || thread.Replies[0].Message.Body != "Sure" {
		t.Fatalf("thread = %+v", thread)
	}

	// Search ranks the edited body.
	w = do(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/search?q=saturday+lunch", alice.ID, nil)
	var found struct {
		Hits []struct {
			Message domain.Message `json:"message"`
		} `json:"hits"`
	}
	decode(t, w, &found)
	if len(found.Hits) == 0 || found.Hits[0].Message.ID != sent.ID {
		t.Fatalf("search hits = %+v", found.Hits)
	}

	// Delete leaves the reply detached.
	if w := do(t, r, http.MethodDelete, msgPath, bob.ID, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-sender delete: expected 403, got %d", w.Code)
	}
	if w := do(t, r, http.MethodDelete, msgPath, alice.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, msgPath, alice.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("deleted get: expected 404, got %d", w.Code)
	}

	// Membership changes.
	partsPath := "/api/v1/conversations/" + conv.ID + "/participants"
	if w := do(t, r, http.MethodDelete, partsPath+"/"+bob.ID, alice.ID, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("shrink below two: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, partsPath, alice.ID, map[string]string{"user_id": carol.ID}); w.Code != http.StatusOK {
		t.Fatalf("add carol = %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPost, partsPath, alice.ID, map[string]string{"user_id": carol.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("add carol twice = %d", w.Code)
	}
	decode(t, w, &conv)
	if len(conv.Participants) != 3 {
		t.Fatalf("participants after re-add = %d", len(conv.Participants))
	}
	if w := do(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID, carol.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("carol get = %d", w.Code)
	}
}

func TestListMessages_BadFilters(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := register(t, r, "alice")
	bob := register(t, r, "bob")

	w := do(t, r, http.MethodPost, "/api/v1/conversations", alice.ID, map[string]any{"participant_ids": []string{bob.ID}})
	var conv domain.Conversation
	decode(t, w, &conv)

	if w := do(t, r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?after=yesterday", alice.ID, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad after: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/v1/conversations/"+uuid.NewString()+"/messages", alice.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation: expected 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_InvalidIdempotencyKey(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := register(t, r, "alice")

	w := do(t, r, http.MethodPost, "/api/v1/conversations/"+uuid.NewString()+"/messages", alice.ID,
		map[string]string{"body": "hi"}, middleware.HeaderIdempotencyKey, "bad key with spaces")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRegisterRoutes_CachePosture(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())
	alice := register(t, r, "alice")
	bob := register(t, r, "bob")

	w := do(t, r, http.MethodPost, "/api/v1/conversations", alice.ID, map[string]any{
		"participant_ids": []string{bob.ID},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation = %d %s", w.Code, w.Body.String())
	}
	var conv domain.Conversation
	decode(t, w, &conv)

	cases := [][2]string{
		{"/api/v1/users/me", "no-store"},
		{"/api/v1/notifications", "no-store"},
		{"/api/v1/messages/unread", "no-store"},
		{"/api/v1/conversations/" + conv.ID + "/messages", "private, no-cache"},
		{"/api/v1/conversations/" + conv.ID, "private, no-cache"},
	}
	for _, tc := range cases {
		path, want := tc[0], tc[1]
		w := do(t, r, http.MethodGet, path, alice.ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s = %d %s", path, w.Code, w.Body.String())
		}
		if got := w.Header().Get("Cache-Control"); got != want {
			t.Fatalf("GET %s Cache-Control = %q, want %q", path, got, want)
		}
	}
}

func TestRateLimit_EnvelopeCode(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.01, 1
	r, _ := newTestRouter(t, cfg)

	if w := do(t, r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second request = %d, Retry-After %q", w.Code, w.Header().Get("Retry-After"))
	}
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != handlers.ErrCodeRateLimited || er.RequestID == "" {
		t.Fatalf("429 body: %s (%v)", w.Body.String(), err)
	}
}

func TestRegisterUser_RejectsMalformedEmail(t *testing.T) {
	r, db := newTestRouter(t, testConfig())

	body := map[string]string{"username": "dave", "email": "dave-at-example"}
	w := do(t, r, http.MethodPost, "/api/v1/users", "", body)
	var er handlers.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || w.Code != http.StatusBadRequest || er.Code != handlers.ErrCodeBadRequest {
		t.Fatalf("malformed email = %d %s (%v)", w.Code, w.Body.String(), err)
	}
	var n int64
	db.Model(&domain.User{}).Count(&n)
	if n != 0 {
		t.Fatalf("malformed email created %d users", n)
	}
}
