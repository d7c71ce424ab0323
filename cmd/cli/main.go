package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/cmd/cli/commands"
	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{Ctx: context.Background()}
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "crop-planner",
		Short:        "Crop Planner CLI - Optimize crop allocations across fields",
		Long:         `A CLI tool for building profit-maximizing crop plans from fields, crops, growth profiles and weather, and for saving, adjusting and publishing them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
			if app.Logger != nil {
				app.Logger.Sync()
			}
		},
	}

	// Add persistent environment flag
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.MarkPersistentFlagRequired("env")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to the console")

	// Add all commands
	rootCmd.AddCommand(commands.OptimizeCmd(app))
	rootCmd.AddCommand(commands.CandidatesCmd(app))
	rootCmd.AddCommand(commands.AdjustCmd(app))
	rootCmd.AddCommand(commands.ListRunsCmd(app))
	rootCmd.AddCommand(commands.PublishPlanCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up the logger and configuration; clients connect lazily
func initApp() error {
	var err error

	app.Env = env
	app.Logger, err = logging.InitLogger(logging.Options{Env: env, Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	loaded, err := config.LoadDotEnv(env)
	if err != nil {
		return err
	}
	if len(loaded) > 0 {
		app.Logger.Debug("Loaded environment files", zap.Strings("files", loaded))
	}

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully",
		zap.String("algorithm", app.Cfg.Optimizer.Algorithm),
		zap.Bool("database_configured", app.Cfg.DatabaseURL != ""))

	return nil
}
