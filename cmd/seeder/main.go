// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/minicrm-backend/internal/config"
	"github.com/unclebandit/minicrm-backend/internal/db"
	"github.com/unclebandit/minicrm-backend/internal/model"
	"github.com/unclebandit/minicrm-backend/internal/repository"
)

var (
	countFlag     int
	seedFlag      int64
	campaignsFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Database migrations and sample data",
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert synthetic customers and sample campaigns",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVarP(&countFlag, "count", "n", 100, "Number of customers to create")
	seedCmd.Flags().Int64Var(&seedFlag, "seed", 0, "Random seed (0 uses the clock)")
	seedCmd.Flags().BoolVar(&campaignsFlag, "campaigns", true, "Also create sample campaigns")
	rootCmd.AddCommand(migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	direction := "up"
	if len(args) == 1 {
		direction = args[0]
	}
	if err := db.Migrate(cfg.DSN(), direction); err != nil {
		return err
	}
	fmt.Printf("Migrations applied: %s\n", direction)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close()

	seed := seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	customers := generateCustomers(countFlag, rnd, time.Now())
	if err := seedCustomers(ctx, &repository.CustomerRepository{DB: conn}, customers); err != nil {
		return err
	}
	fmt.Printf("Seeded: %d customers\n", len(customers))

	if campaignsFlag {
		campaigns := sampleCampaigns()
		if err := seedCampaigns(ctx, &repository.CampaignRepository{DB: conn}, campaigns); err != nil {
			return err
		}
		fmt.Printf("Seeded: %d campaigns\n", len(campaigns))
	}

	fmt.Println("Database seeding completed successfully!")
	return nil
}

type customerCreator interface {
	Create(ctx context.Context, c *model.Customer) error
}

type campaignCreator interface {
	Create(ctx context.Context, c *model.Campaign) error
}

func seedCustomers(ctx context.Context, repo customerCreator, customers []*model.Customer) error {
	for i, c := range customers {
		if err := repo.Create(ctx, c); err != nil {
			return fmt.Errorf("customer %d (%s): %w", i, c.Email, err)
		}
	}
	return nil
}

func seedCampaigns(ctx context.Context, repo campaignCreator, campaigns []*model.Campaign) error {
	for _, c := range campaigns {
		if err := repo.Create(ctx, c); err != nil {
			return fmt.Errorf("campaign %q: %w", c.Name, err)
		}
		log.Printf("✅ campaign %d %q created", c.ID, c.Name)
	}
	return nil
}
