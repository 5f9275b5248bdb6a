// Package report writes daily availability rows to CSV or Excel files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/alex-user-go/hutavail/internal/availability/types"
)

// Sheet is the worksheet name used in Excel reports.
const Sheet = "daily"

// Header is the column order of every report.
var Header = []string{"run_id", "hut_name", "fetch_date", "booking_date", "num_available", "rooms"}

// Row is the availability of one hut on one booking date, as seen on FetchDate.
type Row struct {
	RunID        string
	Hut          string
	FetchDate    types.Date
	BookingDate  types.Date
	NumAvailable int
	Rooms        types.RoomAvailability
}

// Record renders r in Header order. Rooms is JSON keyed by room size.
func (r Row) Record() ([]string, error) {
	rooms := r.Rooms
	if rooms == nil {
		rooms = types.RoomAvailability{}
	}
	encoded, err := json.Marshal(rooms)
	if err != nil {
		return nil, fmt.Errorf("encode rooms: %w", err)
	}
	return []string{
		r.RunID,
		r.Hut,
		r.FetchDate.String(),
		r.BookingDate.String(),
		strconv.Itoa(r.NumAvailable),
		string(encoded),
	}, nil
}

// Write appends rows to path, choosing Excel for .xlsx and CSV otherwise.
func Write(path string, rows []Row) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteXLSX(path, rows)
	}
	return WriteCSV(path, rows)
}

// WriteCSV appends rows to a CSV file, writing the header first if the file is new or empty.
func WriteCSV(path string, rows []Row) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat report: %w", err)
	}

	if err := writeCSV(f, rows, info.Size() == 0); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, rows []Row, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, row := range rows {
		record, err := row.Record()
		if err != nil {
			return err
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX appends rows to the daily sheet of an Excel workbook, creating it if needed.
func WriteXLSX(path string, rows []Row) error {
	f, next, err := openWorkbook(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, next+i)
		if err != nil {
			return err
		}
		values := []any{
			row.RunID,
			row.Hut,
			row.FetchDate.String(),
			row.BookingDate.String(),
			row.NumAvailable,
		}
		record, err := row.Record()
		if err != nil {
			return err
		}
		values = append(values, record[len(record)-1])
		if err := f.SetSheetRow(Sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", next+i, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// openWorkbook opens or creates the workbook and returns the first free row of the daily sheet.
func openWorkbook(path string) (*excelize.File, int, error) {
	created := false
	f, err := excelize.OpenFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f = excelize.NewFile()
		created = true
	case err != nil:
		return nil, 0, fmt.Errorf("open report: %w", err)
	}

	if idx, err := f.GetSheetIndex(Sheet); err != nil || idx == -1 {
		idx, err := f.NewSheet(Sheet)
		if err != nil {
			_ = f.Close()
			return nil, 0, fmt.Errorf("create sheet: %w", err)
		}
		f.SetActiveSheet(idx)
	}
	if created {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			_ = f.Close()
			return nil, 0, fmt.Errorf("remove default sheet: %w", err)
		}
	}

	existing, err := f.GetRows(Sheet)
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("read sheet: %w", err)
	}
	if len(existing) > 0 {
		return f, len(existing) + 1, nil
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(Sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("write header: %w", err)
	}
	return f, 2, nil
}
