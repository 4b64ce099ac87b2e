// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the acting user. With JWT enabled the identity comes from
// an HS256 bearer token whose "sub" claim is the user id; otherwise the
// X-User-ID header is trusted (local/demo deployments). The resolved user row
// is stored in the Gin context, and the messaging core trusts it.
//
// Requests without credentials pass through anonymously so that public routes
// (registration, health) keep working; RequireUser and RequireRole guard the
// rest.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-messaging-core/internal/domain"
)

const (
	// HeaderUserID carries the acting user id when JWT is disabled.
	HeaderUserID = "X-User-ID"

	ctxKeyUserID = "userID"
	ctxKeyUser   = "user"
)

// ErrUnknownUser is returned by a UserLookup when the id has no user row.
var ErrUnknownUser = errors.New("unknown user")

// UserLookup loads the user row for an authenticated id.
type UserLookup func(ctx context.Context, id string) (*domain.User, error)

// AuthOptions configures Identity.
type AuthOptions struct {
	JWTEnabled bool
	Secret     []byte
	Lookup     UserLookup
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// parseSubject validates an HS256 token and returns its subject.
func parseSubject(secret []byte, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Identity resolves the acting user and stores it in the Gin context.
//
// Behavior:
//   - No credentials: the request continues anonymously.
//   - Malformed or invalid credentials, or an id without a user row: 401.
//   - Lookup failures other than ErrUnknownUser: 500.
func Identity(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := credentialID(c, opts)
		if err != nil {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if id == "" {
			c.Next()
			return
		}
		if opts.Lookup == nil {
			abortAuth(c, http.StatusInternalServerError, "internal_error", "identity store unavailable")
			return
		}

		u, err := opts.Lookup(c.Request.Context(), id)
		switch {
		case errors.Is(err, ErrUnknownUser):
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "unknown user")
			return
		case err != nil:
			LoggerFrom(c).Error().Err(err).Msg("identity lookup failed")
			abortAuth(c, http.StatusInternalServerError, "internal_error", "identity lookup failed")
			return
		}

		c.Set(ctxKeyUserID, u.ID)
		c.Set(ctxKeyUser, *u)
		l := LoggerFrom(c).With().Str("user_id", u.ID).Logger()
		attachLogger(c, &l)
		c.Next()
	}
}

func credentialID(c *gin.Context, opts AuthOptions) (string, error) {
	if !opts.JWTEnabled {
		return strings.TrimSpace(c.GetHeader(HeaderUserID)), nil
	}
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if h == "" {
		return "", nil
	}
	scheme, raw, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", errors.New("invalid authorization header")
	}
	sub, err := parseSubject(opts.Secret, strings.TrimSpace(raw))
	if err != nil {
		return "", errors.New("invalid token")
	}
	return sub, nil
}

// CurrentUser returns the user resolved by Identity.
func CurrentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok && u.ID != ""
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// RequireRole rejects users whose role is not in roles with 403
// (401 when anonymous).
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if _, ok := allowed[u.Role]; !ok {
			abortAuth(c, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		c.Next()
	}
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
