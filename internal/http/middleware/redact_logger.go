// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access logger of the API. It never logs bodies, and
// scrubs request metadata before it reaches the log:
//
//   - sensitive headers (Authorization, Cookie, Set-Cookie, X-User-ID and any
//     configured extras) are replaced with "[REDACTED]"
//   - configured query parameters (by default "q", the free-text search) are
//     replaced with "[REDACTED]"
//   - UUID, email and phone-like substrings elsewhere are pattern-redacted
//
// It also attaches the request-scoped logger used by LoggerFrom and
// zerolog.Ctx.
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	}))
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	redacted          = "[REDACTED]"
	maxQueryLogLength = 2048
)

// UUIDs are matched before phone numbers; the phone pattern would otherwise
// eat the digit groups of an id.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

var defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie", HeaderUserID}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders adds header names (case-insensitive) to the built-in set.
	MaskHeaders []string
	// MaskQueryParams lists query parameters whose values are never logged.
	// nil means {"q"}; an empty non-nil slice masks nothing.
	MaskQueryParams []string
}

type scrubber struct {
	headers map[string]struct{}
	params  map[string]struct{}
}

func newScrubber(opts RedactOptions) *scrubber {
	s := &scrubber{
		headers: make(map[string]struct{}),
		params:  make(map[string]struct{}),
	}
	for _, h := range append(append([]string{}, defaultMaskedHeaders...), opts.MaskHeaders...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.headers[h] = struct{}{}
		}
	}
	params := opts.MaskQueryParams
	if params == nil {
		params = []string{"q"}
	}
	for _, p := range params {
		if p = strings.TrimSpace(p); p != "" {
			s.params[p] = struct{}{}
		}
	}
	return s
}

// text applies the pattern redactions.
func (s *scrubber) text(v string) string {
	if v == "" {
		return v
	}
	v = uuidRE.ReplaceAllString(v, "[REDACTED:id]")
	v = emailRE.ReplaceAllString(v, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(v, "[REDACTED:phone]")
}

// query decodes each pair of raw so percent-encoded values are redacted
// too, and keeps the original pair order. The result is for humans and is
// not re-encoded.
func (s *scrubber) query(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	for i, pair := range pairs {
		k, v, hasValue := strings.Cut(pair, "=")
		k = unescape(k)
		switch {
		case !hasValue:
			pairs[i] = s.text(k)
		case s.masked(k):
			pairs[i] = k + "=" + redacted
		default:
			pairs[i] = k + "=" + s.text(unescape(v))
		}
	}
	return truncate(strings.Join(pairs, "&"), maxQueryLogLength)
}

func (s *scrubber) masked(param string) bool {
	_, ok := s.params[param]
	return ok
}

func (s *scrubber) header(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := s.headers[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = s.text(strings.Join(vv, ", "))
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// RedactingLogger logs one entry per request at info, warn (4xx) or error
// (5xx, or when handlers recorded gin errors). Entries carry the route
// pattern, scrubbed query and headers, status, sizes, latency and, when a
// caller was resolved, user_id and actor_role.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	s := newScrubber(opts)

	return func(c *gin.Context) {
		start := time.Now()

		rid := c.Writer.Header().Get(requestIDHeader)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}
		base := log.With().Str("request_id", rid).Logger()
		attachLogger(c, &base)

		query := s.query(c.Request.URL.RawQuery)
		headers := s.header(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		// Identity may have replaced the logger with one carrying user_id.
		lg := LoggerFrom(c)

		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if u, ok := CurrentUser(c); ok {
			ev = ev.Str("actor_role", string(u.Role))
		}

		ev.
			Str("method", c.Request.Method).
			Str("path", s.path(c)).
			Str("query", query).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// path prefers the route pattern; raw paths of unmatched requests are
// pattern-redacted.
func (s *scrubber) path(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return s.text(c.Request.URL.Path)
}
