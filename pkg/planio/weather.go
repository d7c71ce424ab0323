package planio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jakechorley/crop-planner/pkg/core/model"
	"github.com/jakechorley/crop-planner/pkg/core/thermal"
)

// Accepted header spellings, compared after normalizeHeader
var (
	dateHeaders = []string{"date", "day"}
	meanHeaders = []string{"tempmean", "meantemp", "tmean", "tavg", "mean", "temperature"}
	minHeaders  = []string{"tempmin", "mintemp", "tmin", "min"}
	maxHeaders  = []string{"tempmax", "maxtemp", "tmax", "max"}
)

var dateLayouts = []string{model.DateLayout, "2006/01/02", "02/01/2006"}

// LoadWeatherFile reads a weather series from a .csv or .xlsx file
func LoadWeatherFile(path string) ([]model.WeatherRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadWeatherXLSX(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weather file: %w", err)
	}
	defer f.Close()

	records, err := LoadWeatherCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadWeatherCSV reads daily weather from CSV with a header row. Columns are matched by
// name (date, temp_mean, temp_min, temp_max and common aliases). A missing mean column
// is derived from min and max.
func LoadWeatherCSV(r io.Reader) ([]model.WeatherRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read weather csv: %w", err)
	}
	return parseWeatherRows(rows)
}

func loadWeatherXLSX(path string) ([]model.WeatherRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weather workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s: workbook has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	records, err := parseWeatherRows(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(s)
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

func parseWeatherRows(rows [][]string) ([]model.WeatherRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("weather table is empty")
	}

	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		columns[normalizeHeader(h)] = i
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if idx, ok := columns[a]; ok {
				return idx
			}
		}
		return -1
	}

	dateCol, meanCol, minCol, maxCol := find(dateHeaders), find(meanHeaders), find(minHeaders), find(maxHeaders)
	if dateCol < 0 {
		return nil, fmt.Errorf("weather table has no date column")
	}
	if minCol < 0 || maxCol < 0 {
		return nil, fmt.Errorf("weather table needs temp_min and temp_max columns")
	}

	records := make([]model.WeatherRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlank(row) {
			continue
		}

		date, err := parseDate(cell(row, dateCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		tMin, err := parseTemp(cell(row, minCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: temp_min: %w", line, err)
		}
		tMax, err := parseTemp(cell(row, maxCol))
		if err != nil {
			return nil, fmt.Errorf("row %d: temp_max: %w", line, err)
		}

		tMean := (tMin + tMax) / 2
		if meanCol >= 0 && cell(row, meanCol) != "" {
			if tMean, err = parseTemp(cell(row, meanCol)); err != nil {
				return nil, fmt.Errorf("row %d: temp_mean: %w", line, err)
			}
		}

		records = append(records, model.WeatherRecord{
			Date:     date,
			TempMean: tMean,
			TempMin:  tMin,
			TempMax:  tMax,
		})
	}

	slices.SortStableFunc(records, func(a, b model.WeatherRecord) int {
		return a.Date.Compare(b.Date)
	})
	return records, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return thermal.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseTemp(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid temperature %q", s)
	}
	return v, nil
}
