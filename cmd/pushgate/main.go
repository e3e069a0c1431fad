// Command pushgate runs the push notification gateway.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/wisbric/pushgate/internal/app"
	"github.com/wisbric/pushgate/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("pushgate exited: %v", err)
	}
}
