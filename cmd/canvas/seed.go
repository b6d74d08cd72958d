package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/canvas/internal/app/runtime"
	"github.com/R3E-Network/canvas/internal/config"
)

var seedFile string

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "config/seed.yaml", "YAML file listing users and VBUs")
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create bootstrap users and VBUs",
	Long: `Create the users and VBUs listed in a YAML seed file. Existing users
(by email) and VBUs (by name) are left untouched, so the command can be
re-run safely.`,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	seed, err := config.LoadSeedFile(seedFile)
	if err != nil {
		return err
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	application, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("shutdown incomplete")
		}
	}()

	res, err := application.Seed(ctx, seed)
	if err != nil {
		return err
	}
	cmd.Printf("users: %d created, %d existing; vbus: %d created, %d existing\n",
		res.UsersCreated, res.UsersSkipped, res.VBUsCreated, res.VBUsSkipped)
	return nil
}
