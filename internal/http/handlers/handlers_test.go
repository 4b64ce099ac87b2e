package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/services"
)

func Test_failErr_MapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&services.Error{Kind: services.ErrValidation, Reason: "body is empty"}, http.StatusBadRequest, ErrCodeValidation},
		{&services.Error{Kind: services.ErrNotFound, Reason: "message not found"}, http.StatusNotFound, ErrCodeNotFound},
		{&services.Error{Kind: services.ErrPermission, Reason: "only the sender may edit"}, http.StatusForbidden, ErrCodeForbidden},
		{&services.Error{Kind: services.ErrConflict, Reason: "stale version"}, http.StatusConflict, ErrCodeConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failErr(c, tc.err)

		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
		if resp.Code != tc.code {
			t.Fatalf("%v: code=%q want %q", tc.err, resp.Code, tc.code)
		}
		if tc.status == http.StatusInternalServerError && strings.Contains(resp.Message, "disk") {
			t.Fatalf("internal cause leaked: %q", resp.Message)
		}
		if tc.status == http.StatusConflict && resp.Message != "stale version" {
			t.Fatalf("reason not rendered: %q", resp.Message)
		}
	}
}

func Test_messageFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ctx := func(rawQuery string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+rawQuery, nil)
		return c
	}

	f, err := messageFilter(ctx("sender_id=u1&q=lunch&after=2025-01-02T03:04:05%2B02:00"))
	if err != nil {
		t.Fatalf("messageFilter: %v", err)
	}
	if f.SenderID != "u1" || f.Contains != "lunch" || f.SentBefore != nil {
		t.Fatalf("filter = %+v", f)
	}
	want := time.Date(2025, 1, 2, 1, 4, 5, 0, time.UTC)
	if f.SentAfter == nil || !f.SentAfter.Equal(want) || f.SentAfter.Location() != time.UTC {
		t.Fatalf("after = %v", f.SentAfter)
	}

	if _, err := messageFilter(ctx("before=tomorrow")); err == nil {
		t.Fatalf("expected error for non-RFC3339 before")
	}
}

func Test_messagesETag_ChangesWithStatsAndQuery(t *testing.T) {
	now := time.Now()
	base := repo.MessageStats{Count: 2, Versions: 3, Read: 0, Latest: &now}

	e1 := messagesETag("c1", base, "page=1")
	if !strings.HasPrefix(e1, `W/"messages:c1:`) {
		t.Fatalf("etag shape: %s", e1)
	}
	if e1 != messagesETag("c1", base, "page=1") {
		t.Fatalf("etag not stable")
	}

	read := base
	read.Read = 1
	edited := base
	edited.Versions = 4
	for name, other := range map[string]string{
		"read":  messagesETag("c1", read, "page=1"),
		"edit":  messagesETag("c1", edited, "page=1"),
		"query": messagesETag("c1", base, "page=2"),
		"empty": messagesETag("c1", repo.MessageStats{}, "page=1"),
	} {
		if other == e1 {
			t.Fatalf("%s did not change the etag", name)
		}
	}
}

func Test_newPagination(t *testing.T) {
	p := newPagination(2, 10, 21)
	if p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
	if p = newPagination(1, 20, 0); p.TotalPages != 0 || p.HasNext {
		t.Fatalf("empty pagination = %+v", p)
	}
}
