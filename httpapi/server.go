// Package httpapi exposes the application over HTTP: a small public surface
// for the landing page (filtered views, registration intake) and a
// JWT-guarded admin surface for the back-office (collection snapshots,
// mutations, reordering, uploads) plus a websocket feed streaming live
// snapshots and notifications.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/auth"
	"github.com/academiafc/clubsync/core/mutate"
	"github.com/academiafc/clubsync/core/sync"
	"github.com/academiafc/clubsync/images"
	"github.com/academiafc/clubsync/notify"
)

// Server wires the core layers to the HTTP surface.
type Server struct {
	gate     *auth.Gate
	tokens   *auth.Tokens
	manager  *sync.Manager
	gateway  *mutate.Gateway
	notifier *notify.Notifier
	images   images.Service
	logger   *zap.Logger
}

// NewServer creates a Server. A nil logger falls back to a no-op logger.
func NewServer(
	gate *auth.Gate,
	tokens *auth.Tokens,
	manager *sync.Manager,
	gateway *mutate.Gateway,
	notifier *notify.Notifier,
	imageService images.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		gate:     gate,
		tokens:   tokens,
		manager:  manager,
		gateway:  gateway,
		notifier: notifier,
		images:   imageService,
		logger:   logger,
	}
}

// Router builds the gin engine. frontendAddress is the allowed CORS origin;
// uploadsDir, when non-empty, is served statically under /uploads.
func (s *Server) Router(frontendAddress, uploadsDir string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{frontendAddress},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if uploadsDir != "" {
		router.Static("/uploads", uploadsDir)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", s.login)
		api.POST("/auth/anonymous", s.anonymous)

		public := api.Group("/public")
		{
			public.GET("/:collection", s.publicCollection)
			public.POST("/registrations", s.submitRegistration)
		}

		admin := api.Group("/admin", s.requireAdmin())
		{
			admin.GET("/collections/:collection", s.adminCollection)
			admin.POST("/collections/:collection", s.createDocument)
			admin.PATCH("/collections/:collection/:id", s.updateDocument)
			admin.DELETE("/collections/:collection/:id", s.deleteDocument)
			admin.POST("/collections/:collection/:id/toggle", s.toggleVisible)
			admin.POST("/reorder", s.reorder)
			admin.POST("/enroll/:id", s.enroll)
			admin.POST("/uploads", s.upload)
			admin.DELETE("/uploads", s.deleteUpload)
			admin.POST("/logout", s.logout)
		}

		api.GET("/ws", s.feed)
	}

	return router
}
