// Package server exposes the store, duplicate finder and merge manager over
// HTTP.
package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kinfolk-ai/kinfolk/internal/app"
	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/queue"
	mid "github.com/kinfolk-ai/kinfolk/internal/server/middleware"
	"github.com/kinfolk-ai/kinfolk/internal/storage"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/store"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// CustomValidator adapts go-playground/validator to echo.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance with middleware and routes.
func New(a *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(a))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64M"))

	RegisterRoutes(e)
	return e
}

// Init connects every dependency named by cfg and serves until SIGINT or
// SIGTERM.
func Init(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var key keyfunc.Keyfunc
	if cfg.Auth.URL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.Auth.URL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		key = k
	} else {
		logger.Warn("No auth url configured, only the master API key is accepted")
	}

	var publisher queue.Publisher
	var notifier store.Notifier
	if cfg.Server.Queue {
		que := queue.Init(cfg.RabbitMQ)
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues()); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
		eventCh, err := que.Channel()
		if err != nil {
			logger.Fatal("Failed to open event channel", "err", err)
		}
		defer eventCh.Close()
		publisher = queue.NewChannelPublisher(ch)
		notifier = queue.NewNotifier(eventCh)
	}

	var s3Client *storage.Client
	if cfg.S3.Enabled() {
		var err error
		s3Client, err = storage.NewS3Client(ctx, cfg.S3)
		if err != nil {
			logger.Fatal("Could not create S3 client", "err", err)
		}
	}

	k, err := app.New(ctx, cfg, notifier)
	if err != nil {
		logger.Fatal("Failed to open store", "err", err)
	}
	defer k.Close()

	masterUserID, _ := strconv.ParseInt(cfg.Auth.MasterUserID, 10, 64)

	e := New(&mid.App{
		Kinfolk:      k,
		Processor:    &queue.Processor{App: k, S3: s3Client, Publisher: publisher},
		Queue:        publisher,
		Key:          key,
		S3:           s3Client,
		MasterAPIKey: cfg.Auth.MasterAPIKey,
		MasterUserID: masterUserID,
	})

	go func() {
		port := cfg.Server.Port
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
