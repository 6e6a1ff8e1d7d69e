package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/benrogmans/lemma/internal/config"
	"github.com/benrogmans/lemma/internal/engine"
	"github.com/benrogmans/lemma/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (addr: %s)", cfg.Server.Addr())

	ws := engine.WithLimits(cfg.Limits.ResourceLimits())

	workdir := "."
	if len(os.Args) > 1 {
		workdir = os.Args[1]
	}
	if err := loadDirectory(ws, workdir); err != nil {
		log.Fatalf("Failed to load documents: %v", err)
	}
	log.Printf("Loaded %d document(s) from %s", len(ws.ListDocuments()), workdir)

	app := fiber.New(fiber.Config{
		ErrorHandler: server.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(server.RequestID())

	server.RegisterRoutes(app, server.NewHandler(ws))

	log.Printf("Listening on %s", cfg.Server.Addr())
	if err := app.Listen(cfg.Server.Addr()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadDirectory ingests every .lemma file under dir.
func loadDirectory(ws *engine.Workspace, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".lemma") {
			return nil
		}
		code, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return ws.AddSource(string(code), path)
	})
}
