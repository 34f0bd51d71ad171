// main.go - Admin control tool for pulsetrack
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"pulsetrack/internal"
	"pulsetrack/internal/seeder"
	"pulsetrack/internal/settings"
	"pulsetrack/internal/websites"

	"log/slog"
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
	&RegisterSiteCommand{},
	&ListSitesCommand{},
	&SetQuotaCommand{},
	&SetExcludedIPsCommand{},
	&RotateAdminTokenCommand{},
	&VerifyAdminTokenCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
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

// RegisterSiteCommand registers a domain for event collection
type RegisterSiteCommand struct{}

func (c *RegisterSiteCommand) Name() string { return "register-site" }
func (c *RegisterSiteCommand) Description() string {
	return "Registers a website domain for tracking"
}

func (c *RegisterSiteCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("register-site", flag.ContinueOnError)
	limit := fs.Int64("limit", 0, "monthly event limit (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: %s [--limit N] <domain>", c.Name())
	}
	domain := strings.ToLower(strings.TrimSpace(fs.Arg(0)))
	if domain == "" {
		return fmt.Errorf("domain is required")
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	if existing, err := websites.GetWebsiteByDomain(db, domain); err == nil && existing != nil {
		log.Printf("Website %s already registered (id=%d)", domain, existing.ID)
		return nil
	}

	website := &websites.Website{Domain: domain, MonthlyEventLimit: *limit}
	if err := websites.CreateWebsite(db, website); err != nil {
		return fmt.Errorf("failed to register website: %w", err)
	}

	log.Printf("Registered website %s (id=%d, limit=%d)", domain, website.ID, *limit)
	return nil
}

// ListSitesCommand prints the registered websites
type ListSitesCommand struct{}

func (c *ListSitesCommand) Name() string        { return "list-sites" }
func (c *ListSitesCommand) Description() string { return "Lists registered websites" }

func (c *ListSitesCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	sites, err := websites.GetAllWebsites(db)
	if err != nil {
		return fmt.Errorf("failed to list websites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Println("No websites registered")
		return nil
	}

	for _, site := range sites {
		limit := "unlimited"
		if site.MonthlyEventLimit > 0 {
			limit = strconv.FormatInt(site.MonthlyEventLimit, 10)
		}
		fmt.Printf("%-6d %-40s limit=%s\n", site.ID, site.Domain, limit)
	}
	return nil
}

// SetQuotaCommand updates a website's monthly event limit
type SetQuotaCommand struct{}

func (c *SetQuotaCommand) Name() string { return "set-quota" }
func (c *SetQuotaCommand) Description() string {
	return "Sets the monthly event limit for a website (0 = unlimited)"
}

func (c *SetQuotaCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <domain> <limit>", c.Name())
	}

	domain := strings.ToLower(strings.TrimSpace(args[0]))
	limit, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || limit < 0 {
		return fmt.Errorf("limit must be a non-negative integer")
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	website, err := websites.GetWebsiteByDomain(db, domain)
	if err != nil {
		return fmt.Errorf("website lookup failed: %w", err)
	}

	website.MonthlyEventLimit = limit
	if err := websites.UpdateWebsite(db, website); err != nil {
		return fmt.Errorf("failed to update website: %w", err)
	}

	log.Printf("Updated %s monthly event limit to %d", domain, limit)
	return nil
}

// SetExcludedIPsCommand replaces the excluded IPs list
type SetExcludedIPsCommand struct{}

func (c *SetExcludedIPsCommand) Name() string { return "set-excluded-ips" }
func (c *SetExcludedIPsCommand) Description() string {
	return "Replaces the list of IPs excluded from tracking (comma-separated)"
}

func (c *SetExcludedIPsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <ip,ip,...>", c.Name())
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	ips := strings.Split(args[0], ",")
	if err := settings.SetExcludedIPs(db, ips); err != nil {
		return fmt.Errorf("failed to update excluded IPs: %w", err)
	}

	log.Printf("Excluded IPs updated (%d entries)", len(ips))
	return nil
}

// RotateAdminTokenCommand generates a fresh admin API token
type RotateAdminTokenCommand struct{}

func (c *RotateAdminTokenCommand) Name() string { return "rotate-admin-token" }
func (c *RotateAdminTokenCommand) Description() string {
	return "Generates a new admin API token and prints it once"
}

func (c *RotateAdminTokenCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	token, err := settings.RotateAdminToken(db)
	if err != nil {
		return fmt.Errorf("failed to rotate admin token: %w", err)
	}

	fmt.Println("New admin token (store it now, it will not be shown again):")
	fmt.Println(token)
	return nil
}

// VerifyAdminTokenCommand checks a token against the stored hash
type VerifyAdminTokenCommand struct{}

func (c *VerifyAdminTokenCommand) Name() string { return "verify-admin-token" }
func (c *VerifyAdminTokenCommand) Description() string {
	return "Prompts for an admin token and verifies it"
}

func (c *VerifyAdminTokenCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	fmt.Print("Enter admin token: ")
	tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := settings.VerifyAdminToken(db, strings.TrimSpace(string(tokenBytes))); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	fmt.Println("Token is valid")
	return nil
}

// SeedCommand populates the DB with test data
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample data" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	events := fs.Int("events", 10000, "number of events to generate")
	domain := fs.String("domain", "", "specific domain to seed (seeds all defaults if empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *events)

	if *domain != "" {
		return se.SeedDomain(ctx, *domain)
	}
	return se.Run(ctx)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db, err := connection(app)
	if err != nil {
		return err
	}

	var websiteCount, eventCount, sessionCount int64
	if err := db.Table("websites").Count(&websiteCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	_ = db.Table("events").Count(&eventCount).Error
	_ = db.Table("active_sessions").Count(&sessionCount).Error

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Websites: %d", websiteCount)
	log.Printf("- Events: %d", eventCount)
	log.Printf("- Active sessions: %d", sessionCount)

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
	printUsage()
	return nil
}

// Helper functions

func connection(app *internal.Application) (*gorm.DB, error) {
	if app == nil {
		return nil, fmt.Errorf("app initialization failed, cannot connect to database")
	}
	return app.DBManager.GetConnection(), nil
}

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

func printUsage() {
	fmt.Println("Usage: ptctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
