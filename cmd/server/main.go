package main // Entry point package

import (
	"context"
	"log" // Logging library
	"time"

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/email-confirmation/internal/config"     // Internal config loader
	"github.com/iliyamo/email-confirmation/internal/database"   // MySQL pool + schema
	"github.com/iliyamo/email-confirmation/internal/handler"    // HTTP handlers
	"github.com/iliyamo/email-confirmation/internal/middleware" // Response cache middleware
	"github.com/iliyamo/email-confirmation/internal/queue"      // Event publisher and consumers
	"github.com/iliyamo/email-confirmation/internal/repository" // DB repositories
	"github.com/iliyamo/email-confirmation/internal/router"     // Internal router setup
	"github.com/iliyamo/email-confirmation/internal/service"    // Email lifecycle service
)

func main() {
	// Load a local .env when present so development does not need
	// exported variables; production supplies real env vars.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(database.Config{
		User: cfg.DBUser, Pass: cfg.DBPass,
		Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		MaxConns: cfg.DBMaxConns, ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := database.EnsureSchema(ctx, db); err != nil {
		cancel()
		log.Fatalf("ensure schema: %v", err)
	}
	cancel()

	users := repository.NewUserRepo(db)
	addresses := repository.NewEmailAddressRepo(db, cfg.ConfirmationPeriod)
	emails := service.NewEmailService(users, addresses, queue.NewAMQPPublisher())
	emails.DefaultKeyLength = cfg.DefaultKeyLength

	// Background consumers: the event logger always runs; the
	// provisioning hook only when auto-add is enabled.
	go func() {
		if err := queue.StartEmailEventsConsumer(); err != nil {
			log.Printf("email events consumer stopped: %v", err)
		}
	}()
	if cfg.AutoAddOnUserCreate {
		go func() {
			if err := queue.StartUserCreatedConsumer(emails); err != nil {
				log.Printf("user created consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	router.RegisterRoutes(e)

	// The response cache degrades to a pass-through when Redis is
	// unreachable at startup.
	var cacheMW echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		cacheMW = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	} else {
		log.Printf("redis unavailable; response cache disabled")
	}
	router.RegisterEmails(e, handler.NewEmailHandler(emails), cfg.JWTSecret, cacheMW)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
