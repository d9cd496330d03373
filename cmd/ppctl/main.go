// main.go - Admin control tool for PagePulse
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"pagepulse/internal"
	"pagepulse/internal/insights"
	"pagepulse/internal/metrics"
	"pagepulse/internal/seeder"
	"pagepulse/internal/settings"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&DetectCommand{},
	&APIKeyCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	// Parse global flags
	flag.Parse()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Set up context with cancellation for cleanup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals in a separate goroutine
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	// Parse command and arguments
	cmdName, args := parseArgs()

	// Find the requested command
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	// Try to initialize the app
	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
		// Let the command handle this situation
	}

	// Ensure app is cleaned up
	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	// Execute the command
	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample hourly metrics
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample hourly metrics" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	hours := fs.Int("hours", seeder.DefaultHours, "number of hours of history to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *hours)
	if err := se.Seed(ctx); err != nil {
		return err
	}
	return nil
}

// DetectCommand runs a detection pass and prints the ranked insights
type DetectCommand struct{}

func (c *DetectCommand) Name() string { return "detect" }
func (c *DetectCommand) Description() string {
	return "Runs anomaly detection and prints the ranked insights"
}

func (c *DetectCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	persist := fs.Bool("persist", false, "store the generated insights")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	db := app.DBManager.GetConnection()
	engine := insights.NewEngine(db, slog.Default())

	var results []insights.BusinessInsight
	var err error
	if *persist {
		results, err = engine.GenerateAndPersist(ctx)
	} else {
		results, err = engine.GenerateInsights(ctx)
	}
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No insights detected")
		return nil
	}

	for i, insight := range results {
		fmt.Printf("%d. [%s] %s %s (%s, score %d)\n",
			i+1, insight.Type, insight.Page, insight.Change, insight.Metric, insight.ImpactScore)
		fmt.Printf("   %s\n", insight.BusinessInsight)
		fmt.Printf("   -> %s\n", insight.SuggestedAction)
	}

	return nil
}

// APIKeyCommand generates a fresh API key for the insights API
type APIKeyCommand struct{}

func (c *APIKeyCommand) Name() string { return "apikey" }
func (c *APIKeyCommand) Description() string {
	return "Generates a new API key for the insights API"
}

func (c *APIKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	db := app.DBManager.GetConnection()
	key, err := settings.GenerateAPIKey(db)
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	// Only the bcrypt hash is stored; the plaintext cannot be recovered later.
	fmt.Println("New API key (store it now, it will not be shown again):")
	fmt.Println(key)
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	// Get database connection
	db := app.DBManager.GetConnection()

	var trafficCount int64
	if err := db.Model(&metrics.TrafficStat{}).Count(&trafficCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	var insightCount int64
	if err := db.Model(&insights.Insight{}).Count(&insightCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Traffic rows: %d", trafficCount)
	log.Printf("- Stored insights: %d", insightCount)

	// Check database statistics
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fmt.Println("Usage: ppctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	return nil
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	fmt.Println("Usage: ppctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}

	os.Exit(1)
}
