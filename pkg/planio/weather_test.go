package planio

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jakechorley/crop-planner/internal/testfixtures"
)

func TestLoadWeatherCSV_StandardHeaders(t *testing.T) {
	csv := `date,temp_mean,temp_min,temp_max
2024-01-02,6,1,11
2024-01-01,5.5,0,11
`
	records, err := LoadWeatherCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Sorted by date
	assert.Equal(t, testfixtures.Date("2024-01-01"), records[0].Date)
	assert.Equal(t, 5.5, records[0].TempMean)
	assert.Equal(t, 0.0, records[0].TempMin)
	assert.Equal(t, 11.0, records[0].TempMax)
	assert.Equal(t, testfixtures.Date("2024-01-02"), records[1].Date)
}

func TestLoadWeatherCSV_AliasesAndDerivedMean(t *testing.T) {
	csv := "\uFEFFDay, T-Min , T Max\n2024/03/01, 4, 14\n\n"
	records, err := LoadWeatherCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testfixtures.Date("2024-03-01"), records[0].Date)
	assert.Equal(t, 9.0, records[0].TempMean)
}

func TestLoadWeatherCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantErr string
	}{
		{"no date column", "tmin,tmax\n1,2\n", "no date column"},
		{"no min column", "date,tmax\n2024-01-01,2\n", "temp_min and temp_max"},
		{"bad date", "date,tmin,tmax\nyesterday,1,2\n", "row 2"},
		{"bad temperature", "date,tmin,tmax\n2024-01-01,cold,2\n", "temp_min"},
		{"empty", "", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWeatherCSV(strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWeatherFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Date", "Temp Mean", "Temp Min", "Temp Max"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"2024-05-01", 15, 10, 20}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"2024-05-02", 16, 11, 21}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	records, err := LoadWeatherFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, testfixtures.Date("2024-05-01"), records[0].Date)
	assert.Equal(t, 15.0, records[0].TempMean)
	assert.Equal(t, 21.0, records[1].TempMax)
}

func TestLoadWeatherFile_Missing(t *testing.T) {
	_, err := LoadWeatherFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open weather file")
}
