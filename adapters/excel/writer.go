package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"agriprice/domain/dataset"

	"github.com/xuri/excelize/v2"
)

// Format selects an export encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a query or flag value to a Format
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Write encodes observations with a header row in the given format
func Write(w io.Writer, format Format, observations []dataset.Observation) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, observations)
	case FormatXLSX:
		return WriteXLSX(w, observations)
	default:
		return fmt.Errorf("unsupported export format: %q", format)
	}
}

// WriteCSV writes observations as CSV
func WriteCSV(w io.Writer, observations []dataset.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(Columns))
	for i, o := range observations {
		record[0] = strconv.Itoa(o.Year)
		record[1] = strconv.Itoa(o.Month)
		record[2] = o.City
		record[3] = o.Variety
		record[4] = formatFloat(o.Rainfall)
		record[5] = formatFloat(o.Arrivals)
		record[6] = formatFloat(o.Temperature)
		record[7] = formatFloat(o.Price)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes observations to Sheet1 of a new workbook using the
// streaming writer
func WriteXLSX(w io.Writer, observations []dataset.Observation) error {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, col := range Columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for i, o := range observations {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{o.Year, o.Month, o.City, o.Variety, o.Rainfall, o.Arrivals, o.Temperature, o.Price}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush workbook: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
