// Package httpapi builds the Gin engine of the messaging service: the
// middleware chain, the service graph and every route of the API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-core/docs"
	"github.com/tbourn/go-messaging-core/internal/config"
	"github.com/tbourn/go-messaging-core/internal/domain"
	"github.com/tbourn/go-messaging-core/internal/events"
	"github.com/tbourn/go-messaging-core/internal/http/handlers"
	"github.com/tbourn/go-messaging-core/internal/http/middleware"
	"github.com/tbourn/go-messaging-core/internal/repo"
	"github.com/tbourn/go-messaging-core/internal/services"
)

// RegisterRoutes installs the middleware chain and the API on r. Notification
// events go to pub; nil means events.Noop().
//
// The chain runs tracing, request id, access log and recovery first so every
// later failure is traced, correlated and logged. Identity precedes the
// idempotency check, which precedes the rate limiter: a replayed send is
// scoped to its user and does not consume a token.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, pub events.Publisher, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	if pub == nil {
		pub = events.Noop()
	}

	users := services.NewUserService(db)
	convs := services.NewConversationService(db)
	notes := services.NewNotificationService(db, pub)
	msgs := services.NewMessageService(db, cfg.MaxBodyRunes, notes)
	msgs.IdempotencyTTL = cfg.IdempotencyTTL

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders:     []string{"X-API-Key"},
		MaskQueryParams: []string{"q"},
	}))

	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// promhttp negotiates its own encoding.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Identity(middleware.AuthOptions{
		JWTEnabled: cfg.Auth.JWTEnabled,
		Secret:     []byte(cfg.Auth.JWTSecret),
		Lookup:     userLookup(users),
	}))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)))

	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())

	r.Use(corsPolicy(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{
			joinPath(cfg.APIBasePath, "/users"),
			joinPath(cfg.APIBasePath, "/notifications"),
			joinPath(cfg.APIBasePath, "/messages/unread"),
		},
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "events": events.Mode(pub)})
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(users, convs, msgs, notes)

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Registration is open; privileged roles are checked by the handler.
	api.POST("/users", h.RegisterUser)

	authed := api.Group("", middleware.RequireUser())
	{
		// Users
		authed.GET("/users", h.ListUsers)
		authed.GET("/users/me", h.Me)
		authed.DELETE("/users/:id", h.DeleteUser)

		// Conversations
		authed.POST("/conversations", h.CreateConversation)
		authed.GET("/conversations", h.ListConversations)
		authed.GET("/conversations/:id", h.GetConversation)
		authed.POST("/conversations/:id/participants", h.AddParticipant)
		authed.DELETE("/conversations/:id/participants/:user_id", h.RemoveParticipant)
		authed.GET("/conversations/:id/messages", h.ListMessages)
		authed.POST("/conversations/:id/messages", h.PostMessage)
		authed.GET("/conversations/:id/search", h.SearchMessages)

		// Messages (static segments before :id)
		authed.POST("/messages/read", h.MarkRead)
		authed.GET("/messages/unread", h.UnreadMessages)
		authed.GET("/messages/:id", h.GetMessage)
		authed.PATCH("/messages/:id", h.EditMessage)
		authed.DELETE("/messages/:id", h.DeleteMessage)
		authed.GET("/messages/:id/history", h.MessageHistory)
		authed.GET("/messages/:id/thread", h.MessageThread)

		// Notifications
		authed.GET("/notifications", h.ListNotifications)
		authed.POST("/notifications/read", h.MarkNotificationsRead)
	}
}

// userLookup adapts UserService.Get to the identity middleware, mapping a
// missing row to middleware.ErrUnknownUser (401 rather than 500).
func userLookup(users *services.UserService) middleware.UserLookup {
	return func(ctx context.Context, id string) (*domain.User, error) {
		u, err := users.Get(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			return nil, middleware.ErrUnknownUser
		}
		return u, err
	}
}

// idempotencyLookup reports whether a live record for (scope, key) exists.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, scope middleware.IdempotencyScope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, scope.UserID, scope.ConversationID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// joinPath appends route to the API base path ("" and "/" mean root).
func joinPath(base, route string) string {
	return strings.TrimSuffix(base, "/") + route
}

// groupWithPrefix mounts the API at prefix, or at the root for "" and "/".
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
