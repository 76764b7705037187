package main

import (
	"context"
	"log"

	"ledgercore/internal/app"
)

func main() {
	container, err := app.New(context.Background())
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	container.Logger.Info("ledgercore initialized successfully", map[string]interface{}{
		"port": container.Config.Server.Port,
	})

	if err := container.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
