package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/services"
	"github.com/jakechorley/crop-planner/pkg/planio"
)

// ListRunsCmd creates the listRuns command
func ListRunsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listRuns [count]",
		Short: "List saved plan runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 10
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("count must be a positive integer, got: %s", args[0])
				}
				count = n
			}

			database, err := app.Database()
			if err != nil {
				return err
			}

			runs, err := services.ListRuns(app.Ctx, database, count)
			if err != nil {
				return err
			}

			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

// PublishPlanCmd creates the publishPlan command
func PublishPlanCmd(app *AppContext) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "publishPlan <run_id>",
		Short: "Publish a saved plan to the plan spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var problem *model.Problem
			if inputPath != "" {
				p, err := planio.LoadProblem(inputPath)
				if err != nil {
					return err
				}
				problem = p
			}

			database, err := app.Database()
			if err != nil {
				return err
			}
			sheetsClient, err := app.SheetsClient()
			if err != nil {
				return err
			}

			published, err := services.PublishPlan(app.Ctx, database, sheetsClient, app.Cfg.PlanSheetID, problem, args[0], app.Logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%s✓ Published run %s (%d allocations)%s\n\n",
				colorGreen, published.RunID, len(published.Rows), colorReset)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Problem file used to show field and crop names instead of IDs")

	return cmd
}

// MigrateCmd creates the migrate command
func MigrateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := app.Database()
			if err != nil {
				return err
			}

			applied, err := database.RunMigrations(app.Ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "%s✓ Applied %s%s\n", colorGreen, name, colorReset)
			}
			return nil
		},
	}
}
