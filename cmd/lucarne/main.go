package main

import (
	"context"
	"flag"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/app"
	"lucarne/internal/config"
	"lucarne/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}

	log.Infof("Starting lucarne with %d configured cameras", len(cfg.Cameras))

	a, err := app.New(*configPath, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Fatalf("Application exited with error: %v", err)
	}
}
