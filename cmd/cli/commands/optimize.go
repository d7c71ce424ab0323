package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/internal/config"
	"github.com/jakechorley/crop-planner/pkg/core/services"
	"github.com/jakechorley/crop-planner/pkg/observability"
	"github.com/jakechorley/crop-planner/pkg/planio"
)

// OptimizeCmd creates the optimize command
func OptimizeCmd(app *AppContext) *cobra.Command {
	var (
		algorithm   string
		seed        int64
		save        bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "optimize <input.yaml>",
		Short: "Build an optimized crop plan for a planning problem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := planio.LoadProblem(args[0])
			if err != nil {
				return err
			}

			optimizerCfg, err := optimizerOverrides(app.Cfg, cmd, algorithm, seed)
			if err != nil {
				return err
			}

			result, err := services.Optimize(app.Ctx, problem, optimizerCfg, app.Logger)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), result)

			if save {
				database, err := app.Database()
				if err != nil {
					return err
				}
				run, err := services.SavePlan(app.Ctx, database, problem, result, "", app.Logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s✓ Saved as run %s%s\n\n", colorGreen, run.ID, colorReset)
			}

			return writeMetrics(app, metricsFile)
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "Override the configured algorithm (greedy, greedy+local-search, greedy+alns)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Override the configured random seed")
	cmd.Flags().BoolVar(&save, "save", false, "Save the plan to the database")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile (defaults to metricsFile in config)")

	return cmd
}

// CandidatesCmd creates the candidates command
func CandidatesCmd(app *AppContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "candidates <input.yaml>",
		Short: "List the allocation candidates the optimizer would choose from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := planio.LoadProblem(args[0])
			if err != nil {
				return err
			}

			summaries, err := services.GenerateCandidates(app.Ctx, problem, app.Cfg.Optimizer, app.Logger)
			if err != nil {
				return err
			}

			printCandidates(cmd.OutOrStdout(), summaries, limit)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of top candidates to show (0 = all)")

	return cmd
}

// optimizerOverrides applies command-line overrides to a copy of the configured
// optimizer settings and validates the result
func optimizerOverrides(cfg *config.Config, cmd *cobra.Command, algorithm string, seed int64) (config.OptimizerConfig, error) {
	copied := *cfg
	if cmd.Flags().Changed("algorithm") {
		copied.Optimizer.Algorithm = algorithm
	}
	if cmd.Flags().Changed("seed") {
		copied.Optimizer.Seed = seed
	}
	if err := config.Validate(&copied); err != nil {
		return config.OptimizerConfig{}, err
	}
	return copied.Optimizer, nil
}

// writeMetrics exports run metrics when a textfile path is configured
func writeMetrics(app *AppContext, flagPath string) error {
	path := flagPath
	if path == "" {
		path = app.Cfg.MetricsFile
	}
	if path == "" {
		return nil
	}

	if err := observability.WriteTextfile(path); err != nil {
		return err
	}
	app.Logger.Debug("Wrote metrics textfile", zap.String("path", path))
	return nil
}
