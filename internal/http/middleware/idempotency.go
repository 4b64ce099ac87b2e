// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// IdempotencyValidator handles the Idempotency-Key header of message sends.
// It validates the key, stashes it for handlers (GetIdempotencyKey) and, when
// a recorded send already exists for the same user, conversation and key,
// marks the request as a replay (IsReplay) and exempts it from rate limiting.
// Serving the recorded message stays with the handler and service.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen key of a retriable send.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// IdempotencyScope identifies whose send a key belongs to. Keys are only
// unique within a scope.
type IdempotencyScope struct {
	UserID         string
	ConversationID string
}

// IdempotencyLookup reports whether a still-valid send is recorded for
// (scope, key) at now. Errors are logged and treated as "not recorded".
type IdempotencyLookup func(ctx context.Context, scope IdempotencyScope, key string, now time.Time) (bool, error)

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the key alphabet; nil means ^[A-Za-z0-9._~:-]+$.
	Pattern *regexp.Regexp
	// Methods lists the methods whose keys are honored; nil means POST.
	// The header is ignored on every other method.
	Methods []string
	// ConversationParam names the route parameter holding the conversation
	// id; "" means "id".
	ConversationParam string
}

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether the request repeats a recorded send.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyValidator returns the middleware. Requests without the header,
// or with a method outside opts.Methods, pass through untouched. A malformed
// key is rejected with
//
//	400 { "request_id": "...", "code": "bad_idempotency_key", "message": "invalid Idempotency-Key" }
//
// Replay detection needs both an identified caller and a conversation id in
// the route; otherwise the key is only stashed.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	param := opts.ConversationParam
	if param == "" {
		param = "id"
	}
	methods := map[string]struct{}{http.MethodPost: {}}
	if opts.Methods != nil {
		methods = make(map[string]struct{}, len(opts.Methods))
		for _, m := range opts.Methods {
			methods[strings.ToUpper(m)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if _, ok := methods[c.Request.Method]; !ok {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		scope := IdempotencyScope{UserID: userIDFromCtx(c), ConversationID: c.Param(param)}
		if lookup != nil && scope.UserID != "" && scope.ConversationID != "" {
			replay, err := lookup(c.Request.Context(), scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if replay {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// userIDFromCtx returns the user id stored by Identity, or "".
func userIDFromCtx(c *gin.Context) string {
	s, _ := c.Value(ctxKeyUserID).(string)
	return s
}
