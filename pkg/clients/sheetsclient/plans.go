package sheetsclient

import (
	"fmt"
	"math"
	"slices"
	"time"
)

const (
	titleDateFormat = "Mon Jan 02 2006"
	cellDateFormat  = "2006-01-02"

	// headerRowIndex is the zero-based row of the column header; row 1 holds the
	// run summary and row 2 is left blank
	headerRowIndex = 2

	allocationColumn = "Allocation"
)

// planColumns are the columns the planner owns; any other column in a published tab
// belongs to the user and is carried across republishing
var planColumns = []string{
	allocationColumn, "Field", "Crop", "Start", "Completion", "Days",
	"Quantity", "Area", "Revenue", "Cost", "Profit",
}

// PublishedPlanRow is one allocation as shown in the sheet
type PublishedPlanRow struct {
	AllocationID string
	Field        string
	Crop         string
	Start        time.Time
	Completion   time.Time
	Days         int
	Quantity     float64
	Area         float64
	Revenue      float64
	Cost         float64
	Profit       float64
}

// PublishedPlan is a saved optimization run laid out for publishing
type PublishedPlan struct {
	RunID         string
	Algorithm     string
	PlanningStart time.Time
	PlanningEnd   time.Time
	TotalProfit   float64
	TotalRevenue  float64
	TotalCost     float64
	Rows          []PublishedPlanRow
}

// PublishPlan publishes a plan to Google Sheets.
// If the tab doesn't exist it is created, titled "Mon Mar 02 2026 - Tue Sep 29 2026 (1a2b3c4d)".
// If it exists, the planner's columns are overwritten and any extra user columns are kept
// against the allocation they were written next to.
func (c *Client) PublishPlan(spreadsheetID string, plan *PublishedPlan) error {
	tabTitle := generateTabTitle(plan)

	exists, err := c.HasSheet(spreadsheetID, tabTitle)
	if err != nil {
		return err
	}

	rows := BuildPlanRows(plan)
	if exists {
		existing, err := c.GetValues(spreadsheetID, fmt.Sprintf("'%s'!A1:ZZ", tabTitle))
		if err != nil {
			return fmt.Errorf("failed to read existing tab data: %w", err)
		}
		if rows, err = mergePlanRows(existing, plan); err != nil {
			return fmt.Errorf("failed to merge with existing tab: %w", err)
		}
	} else if _, err := c.CreateSheet(spreadsheetID, tabTitle); err != nil {
		return fmt.Errorf("failed to create tab: %w", err)
	}

	if err := c.ReplaceValues(spreadsheetID, fmt.Sprintf("'%s'!A1:ZZ", tabTitle), fmt.Sprintf("'%s'!A1", tabTitle), rows); err != nil {
		return fmt.Errorf("failed to write plan tab: %w", err)
	}
	return nil
}

// generateTabTitle names a tab after the planning horizon and the run it came from
func generateTabTitle(plan *PublishedPlan) string {
	runID := plan.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("%s - %s (%s)",
		plan.PlanningStart.Format(titleDateFormat),
		plan.PlanningEnd.Format(titleDateFormat),
		runID,
	)
}

// BuildPlanRows lays out a fresh tab: summary row, blank row, header, one row per allocation
func BuildPlanRows(plan *PublishedPlan) [][]interface{} {
	header := make([]interface{}, len(planColumns))
	for i, col := range planColumns {
		header[i] = col
	}

	rows := [][]interface{}{summaryRow(plan), {}, header}
	for _, row := range plan.Rows {
		rows = append(rows, planCells(row))
	}
	return rows
}

// mergePlanRows rebuilds an existing tab for plan. Extra columns keep their header and
// their values are matched to rows by allocation ID; allocations no longer in the plan
// are dropped along with their extra values.
func mergePlanRows(existing [][]interface{}, plan *PublishedPlan) ([][]interface{}, error) {
	if len(existing) <= headerRowIndex {
		return nil, fmt.Errorf("existing tab has insufficient rows (expected header on row %d)", headerRowIndex+1)
	}

	existingHeader := existing[headerRowIndex]
	allocCol := findColumnIndex(existingHeader, allocationColumn)
	if allocCol == -1 {
		return nil, fmt.Errorf("existing tab missing required column %s", allocationColumn)
	}

	var extraCols []int
	for i, cell := range existingHeader {
		name, ok := cell.(string)
		if ok && name != "" && !slices.Contains(planColumns, name) {
			extraCols = append(extraCols, i)
		}
	}

	existingByAlloc := make(map[string][]interface{})
	for _, row := range existing[headerRowIndex+1:] {
		if allocCol < len(row) {
			if id, ok := row[allocCol].(string); ok && id != "" {
				existingByAlloc[id] = row
			}
		}
	}

	header := make([]interface{}, 0, len(planColumns)+len(extraCols))
	for _, col := range planColumns {
		header = append(header, col)
	}
	for _, i := range extraCols {
		header = append(header, existingHeader[i])
	}

	rows := [][]interface{}{summaryRow(plan), {}, header}
	for _, row := range plan.Rows {
		cells := planCells(row)
		old := existingByAlloc[row.AllocationID]
		for _, i := range extraCols {
			if i < len(old) {
				cells = append(cells, old[i])
			} else {
				cells = append(cells, "")
			}
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func summaryRow(plan *PublishedPlan) []interface{} {
	return []interface{}{
		"Run", plan.RunID,
		"Algorithm", plan.Algorithm,
		"Profit", round2(plan.TotalProfit),
		"Revenue", round2(plan.TotalRevenue),
		"Cost", round2(plan.TotalCost),
	}
}

func planCells(row PublishedPlanRow) []interface{} {
	return []interface{}{
		row.AllocationID,
		row.Field,
		row.Crop,
		row.Start.Format(cellDateFormat),
		row.Completion.Format(cellDateFormat),
		row.Days,
		round2(row.Quantity),
		round2(row.Area),
		round2(row.Revenue),
		round2(row.Cost),
		round2(row.Profit),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// findColumnIndex finds the index of a column by its header name
func findColumnIndex(header []interface{}, columnName string) int {
	for i, cell := range header {
		if str, ok := cell.(string); ok && str == columnName {
			return i
		}
	}
	return -1
}
