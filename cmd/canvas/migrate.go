package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/R3E-Network/canvas/internal/platform/migrations"
)

var (
	databaseURL string
	downSteps   int
)

func init() {
	migrateCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to CANVAS_DATABASE_URL)")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply or roll back the embedded PostgreSQL migrations.

Examples:
  canvas migrate up
  canvas migrate down --steps 2
  canvas migrate version --database-url postgres://canvas@localhost/canvas?sslmode=disable`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn, err := migrationDSN()
		if err != nil {
			return err
		}
		if err := migrations.Up(dsn); err != nil {
			return err
		}
		cmd.Println("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if downSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		dsn, err := migrationDSN()
		if err != nil {
			return err
		}
		if err := migrations.Down(dsn, downSteps); err != nil {
			return err
		}
		cmd.Printf("rolled back %d migration(s)\n", downSteps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn, err := migrationDSN()
		if err != nil {
			return err
		}
		v, dirty, ok, err := migrations.Version(dsn)
		if err != nil {
			return err
		}
		switch {
		case !ok:
			cmd.Println("no migrations applied")
		case dirty:
			cmd.Printf("%d (dirty)\n", v)
		default:
			cmd.Println(v)
		}
		return nil
	},
}

// migrationDSN only needs the database URL, so it skips full config
// validation.
func migrationDSN() (string, error) {
	if databaseURL != "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return "", fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if dsn := os.Getenv("CANVAS_DATABASE_URL"); dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("CANVAS_DATABASE_URL is not set and --database-url was not given")
}
