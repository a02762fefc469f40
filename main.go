package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"mailbridge/config"
	"mailbridge/composer"
	"mailbridge/handlers/api"
	"mailbridge/middleware"
	"mailbridge/providers"
	"mailbridge/storage"
	"mailbridge/syncer"
	"mailbridge/utils"
)

func main() {
	utils.Log.Info("Initializing mailbridge...")

	cfg, err := config.LoadConfig("config.toml")
	if err != nil {
		utils.Log.Error("Failed to load config: %v", err)
		return
	}
	utils.Log.SetLevel(utils.ParseLogLevel(cfg.Server.LogLevel))

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		utils.Log.Error("Failed to open database: %v", err)
		return
	}
	defer store.Close()

	media, err := storage.NewMediaStore(cfg.Media.Folder)
	if err != nil {
		utils.Log.Error("Failed to initialize media store: %v", err)
		return
	}

	tokens := providers.NewOAuthTokenProvider(
		providers.OAuthEndpoint{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			TokenURL:     cfg.Google.TokenURL,
		},
		providers.OAuthEndpoint{
			ClientID:     cfg.Microsoft.ClientID,
			ClientSecret: cfg.Microsoft.ClientSecret,
			TokenURL:     cfg.Microsoft.TokenURL,
		},
	)
	clients := providers.NewManager(tokens)

	hub := api.NewHub()
	service := syncer.NewService(store, media, clients, hub, utils.Log)
	compose := composer.New(store, media, clients, cfg.Tracking.BaseURL, utils.Log)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			if appErr, ok := err.(*utils.AppError); ok {
				code = appErr.Code
				if code >= 500 {
					utils.Log.Error("Application error: %v", appErr)
				}
			} else if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(helmet.New())
	app.Use(middleware.RateLimiter(100, time.Minute))

	handler := api.NewHandler(store, media, clients, service, compose, hub)
	handler.RegisterRoutes(app, cfg.JWT.Secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := syncer.NewScheduler(service, cfg.SyncInterval(), cfg.StoppedRetryAfter(), utils.Log)
	go scheduler.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	utils.Log.Info("mailbridge listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		utils.Log.Error("Server stopped: %v", err)
	}
}
