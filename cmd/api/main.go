package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roadwarden/roadwarden/internal/config"
	"github.com/roadwarden/roadwarden/internal/database"
	"github.com/roadwarden/roadwarden/internal/logger"
	"github.com/roadwarden/roadwarden/internal/server"
	"github.com/roadwarden/roadwarden/internal/services"
	"github.com/roadwarden/roadwarden/internal/version"
)

func main() {
	logDir := filepath.Join("data", "logs")
	_ = os.MkdirAll(logDir, 0o755)

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "roadwarden.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Environment == "development", out)

	if len(os.Args) > 1 && os.Args[1] == "truncate-logs" {
		runTruncate(cfg)
		return
	}

	log.Printf("starting %s %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runTruncate performs one retention pass and exits. Useful from cron on
// hosts that do not keep the server running continuously.
func runTruncate(cfg config.Config) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	result, err := services.NewRetentionService(db, cfg).Truncate()
	if err != nil {
		log.Fatalf("truncate: %v", err)
	}
	log.Printf("truncated %d request logs, %d session logs, %d login attempts",
		result.RequestLogs, result.SessionLogs, result.LoginAttempts)
}
