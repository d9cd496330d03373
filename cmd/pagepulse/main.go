// main.go - PagePulse metrics server
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagepulse/internal"
	"pagepulse/internal/config"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("pagepulse: %v", err)
	}
}

func run() error {
	cfg := config.GetConfig()

	app, err := internal.NewAppWithConfig(cfg)
	if err != nil {
		return err
	}

	// Migrations run before the server accepts traffic, so handlers never see
	// a partially migrated schema.
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return err
	}

	if err := app.StartAsync(); err != nil {
		return err
	}
	log.Printf("Listening on :%s (env %s), detection every %ds",
		cfg.GetPort(), cfg.Environment, cfg.JobIntervalSeconds)

	return waitForShutdown(app)
}

// waitForShutdown blocks until a termination signal, then drains the server
// and background jobs within the shutdown timeout.
func waitForShutdown(app *internal.Application) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	log.Printf("Received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		return err
	}
	log.Println("Shutdown complete")
	return nil
}
