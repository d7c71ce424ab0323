package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/services"
	"github.com/jakechorley/crop-planner/pkg/db"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// printPlan writes the allocation table and totals of a plan
func printPlan(w io.Writer, result *services.PlanResult) {
	fmt.Fprintf(w, "\nPlan %s (%s)\n\n", result.RunID, result.Algorithm)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCROP\tSTART\tCOMPLETION\tDAYS\tQUANTITY\tAREA\tREVENUE\tCOST\tPROFIT")
	for _, a := range result.Allocations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.0f\t%.1f\t%.2f\t%.2f\t%s\n",
			a.Allocation.Field.ID,
			a.Allocation.Crop.ID,
			a.Allocation.StartDate.Format(model.DateLayout),
			a.Allocation.CompletionDate.Format(model.DateLayout),
			a.Allocation.GrowthDays,
			a.Allocation.Quantity,
			a.Allocation.AreaUsed,
			a.Metrics.Revenue,
			a.Metrics.Cost,
			colorProfit(a.Metrics.Profit))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nAllocations:    %d (from %d candidates)\n", len(result.Allocations), result.CandidateCount)
	fmt.Fprintf(w, "Revenue:        %.2f\n", result.TotalRevenue)
	fmt.Fprintf(w, "Cost:           %.2f\n", result.TotalCost)
	fmt.Fprintf(w, "Profit:         %.2f (initial %.2f)\n", result.TotalProfit, result.InitialProfit)
	fmt.Fprintf(w, "Duration:       %s\n", result.Duration.Round(time.Millisecond))

	if result.DidNotConverge {
		fmt.Fprintf(w, "%sSearch found no improvement on the starting plan%s\n", colorYellow, colorReset)
	}
	if len(result.UnmetTargets) > 0 {
		fmt.Fprintf(w, "\n%sUnmet crop targets:%s\n", colorRed, colorReset)
		for _, u := range result.UnmetTargets {
			fmt.Fprintf(w, "  %s: planted %.0f of %.0f (short %.0f)\n", u.CropID, u.Planted, u.Target, u.Shortfall())
		}
	}
	fmt.Fprintln(w)
}

func colorProfit(profit float64) string {
	if profit < 0 {
		return fmt.Sprintf("%s%.2f%s", colorRed, profit, colorReset)
	}
	return fmt.Sprintf("%.2f", profit)
}

// printRejected lists the move instructions Adjust could not apply
func printRejected(w io.Writer, rejected []services.RejectedMove) {
	if len(rejected) == 0 {
		return
	}
	fmt.Fprintf(w, "%sRejected instructions:%s\n", colorRed, colorReset)
	for _, r := range rejected {
		fmt.Fprintf(w, "  %s %s: %s\n", r.Instruction.Action, r.Instruction.AllocationID, r.Reason)
	}
	fmt.Fprintln(w)
}

// printRuns writes saved runs as a table, newest first
func printRuns(w io.Writer, runs []db.PlanRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No saved plan runs")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tALGORITHM\tHORIZON\tPROFIT\tPARENT")
	for _, r := range runs {
		parent := r.ParentRunID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			r.ID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.Algorithm,
			r.PlanningStart.Format(model.DateLayout)+" to "+r.PlanningEnd.Format(model.DateLayout),
			r.TotalProfit,
			parent)
	}
	tw.Flush()
}

// printCandidates writes the best candidates and a per field x crop count
func printCandidates(w io.Writer, summaries []services.CandidateSummary, limit int) {
	counts := make(map[string]int)
	var pairs []string
	for _, s := range summaries {
		pair := s.Candidate.Field.ID + " x " + s.Candidate.Crop.ID
		if counts[pair] == 0 {
			pairs = append(pairs, pair)
		}
		counts[pair]++
	}

	fmt.Fprintf(w, "\n%s%d candidates%s across %d field x crop pairs\n\n", colorGreen, len(summaries), colorReset, len(pairs))
	for _, pair := range pairs {
		fmt.Fprintf(w, "  %-30s %d\n", pair, counts[pair])
	}

	if limit <= 0 || limit > len(summaries) {
		limit = len(summaries)
	}
	if limit == 0 {
		return
	}

	fmt.Fprintf(w, "\nTop %d by stand-alone profit:\n\n", limit)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tCROP\tSTART\tCOMPLETION\tLEVEL\tRANK\tPROFIT\tRATE")
	for _, s := range summaries[:limit] {
		c := s.Candidate
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f\t%.3f\n",
			c.Field.ID,
			c.Crop.ID,
			c.StartDate.Format(model.DateLayout),
			c.CompletionDate.Format(model.DateLayout),
			fmt.Sprintf("%.0f%%", c.QuantityLevel*100),
			c.PeriodRank,
			s.Metrics.Profit,
			s.Metrics.ProfitRate)
	}
	tw.Flush()
	fmt.Fprintln(w)
}
