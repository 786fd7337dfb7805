package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"compliance-core/internal/api"
	"compliance-core/internal/archive"
	"compliance-core/internal/compiler"
	"compliance-core/internal/config"
	"compliance-core/internal/instrument"
	"compliance-core/internal/pipeline"
	"compliance-core/internal/rulestore"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s/%s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Open the report archive
	arc, err := archive.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer arc.Close()
	log.Println("Archive connected")

	// 3. Bootstrap system tables
	if err := arc.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Rule store, pipeline engine, report compiler
	rules := rulestore.New()
	engine := pipeline.NewEngine(cfg.Pipeline.Workers)
	comp := compiler.New()

	// 5. Event buffer for pipeline instrumentation
	var buffer *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		buffer = instrument.NewEventBuffer(arc, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer buffer.Stop()
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, buffer))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Register pipeline routes
	handler := api.NewHandler(rules, engine, comp, arc, cfg.Pipeline.MaxRecordsPerRun)
	api.RegisterRoutes(app, handler)

	// 9. Register event query routes
	if cfg.Instrumentation.Enabled {
		instrument.RegisterEventRoutes(app, instrument.NewEventHandler(arc))
		go retireOldEvents(ctx, arc, cfg.Instrumentation.RetentionDays)
	}

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func retireOldEvents(ctx context.Context, arc *archive.Store, retentionDays int) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			arc.CleanupOldEvents(ctx, retentionDays)
		}
	}
}
