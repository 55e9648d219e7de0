package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"volunteer-backend/internal/admin"
	"volunteer-backend/internal/auth"
	"volunteer-backend/internal/config"
	"volunteer-backend/internal/engine"
	"volunteer-backend/internal/instrument"
	"volunteer-backend/internal/metadata"
	"volunteer-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Load the entity catalog
	catalog := metadata.Catalog()
	if err := metadata.Validate(catalog); err != nil {
		log.Fatalf("Invalid entity catalog: %v", err)
	}
	reg := metadata.NewRegistry()
	reg.Load(catalog)

	// 4. Create or alter tables
	if err := store.NewMigrator(db).MigrateAll(ctx, reg.AllEntities()); err != nil {
		log.Fatalf("Failed to migrate tables: %v", err)
	}

	// 5. Bootstrap system tables (needs users)
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 6. Wire repositories and populate services
	resources, err := engine.BuildResources(reg, engine.Traced(engine.PgRepositories(db.Pool)))
	if err != nil {
		log.Fatalf("Failed to wire resources: %v", err)
	}

	// 7. Start the trace event buffer and its retention job
	instCfg := cfg.Instrumentation
	events := instrument.NewEventBuffer(instrument.PgEventWriter{Pool: db.Pool}, instCfg.BufferSize,
		time.Duration(instCfg.FlushIntervalMs)*time.Millisecond)
	defer events.Stop()
	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	instrument.StartCleanup(cleanupCtx, db.Pool, instCfg.RetentionDays, time.Hour)

	// 8. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(instCfg, events))

	// 9. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 10. Auth routes (before the dynamic routes, mostly public)
	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	authHandler := auth.NewAuthHandler(db, resources.Get("users"), cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler, authMW)

	// 11. Admin introspection (auth + admin required)
	adminHandler := admin.NewHandler(db.Pool, reg, resources)
	admin.RegisterAdminRoutes(app, adminHandler, authMW, auth.RequireAdmin())

	// 12. Dynamic entity routes (auth required)
	engineHandler := engine.NewHandler(resources, engine.Paging{
		DefaultPerPage: cfg.API.DefaultPerPage,
		MaxPerPage:     cfg.API.MaxPerPage,
	})
	engine.RegisterDynamicRoutes(app, engineHandler, authMW)

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
