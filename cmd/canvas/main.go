// Command canvas runs the Canvas API server and its maintenance tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/canvas/internal/config"
	"github.com/R3E-Network/canvas/internal/logging"
)

var (
	version = "dev"
	envFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Canvas strategy tracking API",
	Long: `canvas serves the REST API for VBU canvases, monthly reviews and the
portfolio dashboard, and bundles the database and seeding tools it needs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(version)
	},
}

func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadFromFiles(envFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New("canvas", cfg.Logging.Level, cfg.Logging.Format), nil
}
