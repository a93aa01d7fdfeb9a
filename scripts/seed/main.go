package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"lealta/internal/config"
	"lealta/internal/models"
	"lealta/internal/repository"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Command-line flags
var (
	campaignsCount = flag.Int("campaigns", 3, "Number of campaigns to create")
	recipientsPer  = flag.Int("recipients", 25, "Recipients per campaign")
	clearData      = flag.Bool("clear", false, "Clear existing seed data before inserting")
	showHelp       = flag.Bool("help", false, "Show usage information")
)

var firstNames = []string{
	"Amina", "Brian", "Carol", "David", "Esther", "Felix", "Grace", "Hassan",
	"Irene", "James", "Kevin", "Lucy", "Moses", "Naomi", "Otieno", "Pauline",
}

func main() {
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	_ = godotenv.Load()

	printInfo("=== Lealta Dispatcher Seeder ===\n")

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	printInfo("Connecting to database...")
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		printError(fmt.Sprintf("Failed to open database connection: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		printError(fmt.Sprintf("Failed to ping database: %v", err))
		os.Exit(1)
	}
	printSuccess("✓ Connected to database\n")

	if *clearData {
		if err := clearSeedData(db); err != nil {
			printError(fmt.Sprintf("Failed to clear seed data: %v", err))
			os.Exit(1)
		}
	}

	created, err := seedCampaigns(db, *campaignsCount, *recipientsPer)
	if err != nil {
		printError(fmt.Sprintf("Failed to seed campaigns: %v", err))
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("\n✓ Created %d campaign(s) with %d recipients each", created, *recipientsPer))
	printInfo("\n✨ Seeding completed!")
}

// clearSeedData removes every campaign owned by the demo tenant. Jobs go
// with them through the foreign key cascade.
func clearSeedData(db *sql.DB) error {
	printWarning("Clearing existing seed data...")

	if _, err := db.Exec("DELETE FROM campaigns WHERE tenant_id = 'demo'"); err != nil {
		return fmt.Errorf("failed to delete demo campaigns: %w", err)
	}

	printSuccess("✓ Seed data cleared\n")
	return nil
}

func seedCampaigns(db *sql.DB, count, recipients int) (int, error) {
	ctx := context.Background()
	campaigns := repository.NewCampaignRepository(db)
	jobs := repository.NewJobRepository(db)

	presets := []models.PacingConfig{
		{BatchSize: 5, MessageDelay: 2 * time.Second, MaxAttempts: 5, BackoffBase: 5 * time.Second, BackoffCap: 2 * time.Minute},
		{BatchSize: 10, MessageDelay: time.Second, MaxAttempts: 3, BackoffBase: 2 * time.Second, BackoffCap: time.Minute},
		{BatchSize: 25, MessageDelay: 200 * time.Millisecond, MaxAttempts: 2, BackoffBase: time.Second, BackoffCap: 30 * time.Second},
	}

	for i := 0; i < count; i++ {
		pacing := presets[i%len(presets)]
		pacing.Normalize()

		campaign := &models.Campaign{
			ID:       uuid.NewString(),
			TenantID: "demo",
			Name:     fmt.Sprintf("Demo campaign %d", i+1),
			Message:  "Hi {name}, thanks for being a loyal customer!",
			Status:   models.CampaignStatusCreated,
			Pacing:   pacing,
		}

		if err := campaigns.Create(ctx, campaign); err != nil {
			return i, fmt.Errorf("failed to create campaign: %w", err)
		}

		batch := make([]*models.Job, 0, recipients)
		for j := 0; j < recipients; j++ {
			batch = append(batch, &models.Job{
				ID:         uuid.NewString(),
				CampaignID: campaign.ID,
				Target:     fmt.Sprintf("+2547%08d", i*recipients+j),
				Name:       firstNames[j%len(firstNames)],
				Position:   j,
				Status:     models.JobStatusPending,
			})
		}

		if err := jobs.CreateBatch(ctx, batch); err != nil {
			return i, fmt.Errorf("failed to create jobs: %w", err)
		}

		printInfo(fmt.Sprintf("  Created %q (%d recipients)", campaign.Name, recipients))
	}

	return count, nil
}

func printUsage() {
	fmt.Println("Usage: go run scripts/seed/main.go [flags]")
	fmt.Println()
	flag.PrintDefaults()
}

func printInfo(msg string) {
	fmt.Println(colorCyan + msg + colorReset)
}

func printSuccess(msg string) {
	fmt.Println(colorGreen + msg + colorReset)
}

func printWarning(msg string) {
	fmt.Println(colorYellow + msg + colorReset)
}

func printError(msg string) {
	fmt.Println(colorRed + "ERROR: " + msg + colorReset)
}
