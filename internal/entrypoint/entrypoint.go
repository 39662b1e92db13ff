// Package entrypoint wires the library core, the root-scoped services, and
// the HTTP surface together, and runs the server with graceful shutdown.
package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/bookreader/internal/config"
	http_controllers "github.com/openshelf/bookreader/internal/http"
	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/pathstore"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the HTTP server until SIGINT/SIGTERM, then drains it.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown requested, waiting up to %v", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Shutdown callback first so open reader sessions flush their progress
	// before the process goes away.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server shutdown:", err)
	}
	log.Println("Server exiting")
}

// Run boots the application: load the configured storage root if there is
// one, activate the library against it when valid, and serve the API. When
// no valid root exists the server still comes up and the shell drives the
// storage-setup flow over the same API.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting bookreader v%s", version)

	var paths *pathstore.Store
	var err error
	if cfg.Global.ConfigDir != "" {
		paths, err = pathstore.New(cfg.Global.ConfigDir)
	} else {
		paths, err = pathstore.NewDefault()
	}
	if err != nil {
		log.Fatalf("Failed to initialize path store: %v", err)
	}

	lib := library.New()
	broker := http_controllers.NewEventBroker()
	lib.Subscribe(broker.Publish)

	services := newRootServices(cfg)

	// Background goroutines (tasks, watcher, scheduler) live until shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	activate := func(ctx context.Context, root string) error {
		if err := lib.Activate(ctx, root); err != nil {
			return err
		}
		return services.start(appCtx, lib, root)
	}

	if root, ok := paths.ConfiguredPath(); ok {
		switch status := lib.ValidateRoot(root); status {
		case library.RootValid:
			if err := activate(appCtx, root); err != nil {
				log.Fatalf("Failed to activate library at %s: %v", root, err)
			}
		default:
			log.Printf("Configured storage root %s is %s; waiting for setup", root, status)
		}
	} else {
		log.Printf("No storage root configured; waiting for setup")
	}

	var csrfSecret []byte
	if cfg.Security.CSRFSecret != "" {
		csrfSecret, err = hex.DecodeString(cfg.Security.CSRFSecret)
		if err != nil || len(csrfSecret) != 32 {
			log.Fatalf("CSRF_SECRET must be 32 bytes of hex")
		}
	}

	router, readerCtrl := http_controllers.NewRouter(http_controllers.RouterConfig{
		Version:       version,
		Lib:           lib,
		Paths:         paths,
		Activate:      activate,
		Services:      services,
		Broker:        broker,
		Throttle:      cfg.Reader.ThrottleInterval,
		CSRFSecret:    csrfSecret,
		SecureCookies: cfg.Security.SecureCookies,
	})

	Serve(router, cfg, func(ctx context.Context) {
		readerCtrl.CloseAll(ctx)
		appCancel()
		services.stop(ctx)
	})
}
