package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/crop-planner/pkg/core/services"
	"github.com/jakechorley/crop-planner/pkg/planio"
)

// AdjustCmd creates the adjust command
func AdjustCmd(app *AppContext) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "adjust <run_id> <input.yaml> <moves.yaml>",
		Short: "Apply manual moves and removals to a saved plan and refill freed capacity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]

			problem, err := planio.LoadProblem(args[1])
			if err != nil {
				return err
			}
			moves, err := planio.LoadMoves(args[2])
			if err != nil {
				return err
			}

			database, err := app.Database()
			if err != nil {
				return err
			}

			_, solution, err := services.LoadSolution(app.Ctx, database, problem, runID)
			if err != nil {
				return err
			}

			app.Logger.Debug("adjust command",
				zap.String("run_id", runID),
				zap.Int("allocations", solution.Len()),
				zap.Int("moves", len(moves)))

			result, err := services.Adjust(app.Ctx, problem, solution, moves, app.Cfg.Optimizer, app.Logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printPlan(out, result.Plan)
			fmt.Fprintf(out, "Applied %d of %d instructions, filled %d new allocations\n\n",
				len(result.Applied), len(moves), result.Filled)
			printRejected(out, result.Rejected)

			if save {
				run, err := services.SavePlan(app.Ctx, database, problem, result.Plan, runID, app.Logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s✓ Saved as run %s (adjusted from %s)%s\n\n", colorGreen, run.ID, runID, colorReset)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", true, "Save the adjusted plan as a new run")

	return cmd
}
