package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wildcut/internal/config"
	"wildcut/internal/daemon"
	"wildcut/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	// A .env beside the working directory may carry NVR credentials.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("wildcutd-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		Paths:  []string{"stderr", logPath},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited", logging.Error(err))
		os.Exit(1)
	}
}
