package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/pathstore"
)

// RouterConfig carries all router dependencies, improving testability and
// reducing parameter count.
type RouterConfig struct {
	Version  string
	Lib      *library.Store
	Paths    *pathstore.Store
	Activate ActivateFunc
	Services RootServices
	Broker   *EventBroker
	Throttle time.Duration

	// CSRFSecret enables CSRF protection on mutating routes when non-empty.
	CSRFSecret    []byte
	SecureCookies bool
}

// NewRouter creates and configures the HTTP router with all endpoints. The
// reader controller is returned as well so the entrypoint can close open
// sessions during graceful shutdown.
func NewRouter(cfg RouterConfig) (*gin.Engine, *ReaderController) {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	if len(cfg.CSRFSecret) > 0 {
		router.Use(CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
		router.GET("/api/csrf", CSRFTokenHandler)
	}

	health := NewHealthController(cfg.Lib, cfg.Version)
	setup := NewSetupController(cfg.Paths, cfg.Lib, cfg.Activate)
	libCtrl := NewLibraryController(cfg.Lib, cfg.Services)
	readerCtrl := NewReaderController(cfg.Lib, cfg.Services, cfg.Throttle)
	histCtrl := NewHistoryController(cfg.Services)

	router.GET("/healthz", health.Health)

	api := router.Group("/api")
	{
		api.GET("/storage", setup.GetStorage)
		api.POST("/storage", setup.SetStorage)
		api.DELETE("/storage", setup.ClearStorage)

		api.GET("/books", libCtrl.ListBooks)
		api.POST("/books", libCtrl.ImportBook)
		api.GET("/books/:id", libCtrl.GetBook)
		api.DELETE("/books/:id", libCtrl.DeleteBook)
		api.PATCH("/books/:id", libCtrl.RenameBook)
		api.PUT("/books/:id/progress", libCtrl.UpdateProgress)
		api.GET("/books/:id/cover", libCtrl.GetCover)
		api.GET("/books/:id/history", histCtrl.GetBookHistory)

		api.POST("/books/:id/session", readerCtrl.OpenSession)
		api.GET("/sessions/:sid", readerCtrl.GetPosition)
		api.POST("/sessions/:sid/next", readerCtrl.NextChunk)
		api.POST("/sessions/:sid/prev", readerCtrl.PreviousChunk)
		api.POST("/sessions/:sid/seek", readerCtrl.Seek)
		api.DELETE("/sessions/:sid", readerCtrl.CloseSession)

		if cfg.Broker != nil {
			api.GET("/events", cfg.Broker.Stream)
		}
	}

	return router, readerCtrl
}
