package cmd

import (
	"errors"
	"fmt"
	"os"

	"signup-service/internal/config"
	"signup-service/internal/infrastructure/database"
	"signup-service/internal/infrastructure/queue"
	"signup-service/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration management",
	Long: `Manage database migrations for the sign-up service. PostgreSQL uses the
versioned SQL files in database.migrations_dir; SQLite is auto-migrated from
the models.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run pending migrations",
	Long:  "Execute all pending database migrations",
	Run:   runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  "Display the status of all migrations",
	Run:   runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) {
	cfg := config.Get()
	dbConfig := databaseConfig(cfg)

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	if err := database.Migrate(db, dbConfig, cfg.Database.MigrationsDir, queue.Models()...); err != nil {
		logger.Error("Migration failed: %v", err)
		os.Exit(1)
	}

	fmt.Println("Migrations completed successfully!")
}

func runMigrateStatus(cmd *cobra.Command, args []string) {
	cfg := config.Get()
	dbConfig := databaseConfig(cfg)

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	migrations, err := database.NewMigrationRunner(db, dbConfig.Driver, cfg.Database.MigrationsDir).Status()
	if errors.Is(err, database.ErrAutoMigrated) {
		fmt.Printf("%s schema is auto-migrated; there are no versioned migrations to report.\n", dbConfig.Driver)
		return
	}
	if err != nil {
		logger.Error("Failed to get migration status: %v", err)
		os.Exit(1)
	}

	fmt.Println("Migration Status:")
	fmt.Println("================")
	for _, migration := range migrations {
		status := "Pending"
		if migration.AppliedAt != nil {
			status = fmt.Sprintf("Applied at %s", migration.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("%s - %s [%s]\n", migration.ID, migration.Description, status)
	}
}
