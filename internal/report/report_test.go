package report_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/report"
)

func sampleRows() []report.Row {
	fetch := types.NewDate(2024, time.June, 1)
	return []report.Row{
		{
			RunID:        "run-1",
			Hut:          "Rifugio Fanes",
			FetchDate:    fetch,
			BookingDate:  types.NewDate(2024, time.July, 1),
			NumAvailable: 10,
			Rooms:        types.RoomAvailability{2: 3, 4: 1},
		},
		{
			RunID:       "run-1",
			Hut:         "Rifugio Fanes",
			FetchDate:   fetch,
			BookingDate: types.NewDate(2024, time.July, 2),
		},
	}
}

func TestRow_Record(t *testing.T) {
	rows := sampleRows()

	got, err := rows[0].Record()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "Rifugio Fanes", "2024-06-01", "2024-07-01", "10", `{"2":3,"4":1}`}, got)

	got, err = rows[1].Record()
	require.NoError(t, err)
	assert.Equal(t, "{}", got[5], "no rooms renders as an empty object")
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteCSV_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.csv")

	require.NoError(t, report.WriteCSV(path, sampleRows()))
	require.NoError(t, report.WriteCSV(path, sampleRows()[:1]))

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, report.Header, records[0])
	assert.Equal(t, "2024-07-01", records[1][3])
	assert.Equal(t, "2024-07-02", records[2][3])
	assert.Equal(t, "2024-07-01", records[3][3])
}

func TestWriteCSV_NoRowsWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.csv")
	require.NoError(t, report.WriteCSV(path, nil))
	assert.Equal(t, [][]string{report.Header}, readCSV(t, path))
}

func TestWriteXLSX_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daily.xlsx")

	require.NoError(t, report.Write(path, sampleRows()))
	require.NoError(t, report.Write(path, sampleRows()[:1]))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.Sheet}, f.GetSheetList())

	rows, err := f.GetRows(report.Sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, report.Header, rows[0])
	assert.Equal(t, []string{"run-1", "Rifugio Fanes", "2024-06-01", "2024-07-01", "10", `{"2":3,"4":1}`}, rows[1])
	assert.Equal(t, "0", rows[2][4])
	assert.Equal(t, "2024-07-01", rows[3][3])
}

func TestWrite_ChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "daily.csv")
	require.NoError(t, report.Write(csvPath, sampleRows()))
	assert.Len(t, readCSV(t, csvPath), 3)

	xlsxPath := filepath.Join(dir, "daily.XLSX")
	require.NoError(t, report.Write(xlsxPath, sampleRows()))
	f, err := excelize.OpenFile(xlsxPath)
	require.NoError(t, err)
	defer f.Close()
}
