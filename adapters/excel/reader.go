package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"agriprice/domain/core"
	"agriprice/domain/dataset"
	"agriprice/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading observation files in Excel or CSV format
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	bounds   dataset.Bounds
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV
// files. Rows are validated against bounds.
func NewDataReader(filePath string, bounds dataset.Bounds, logger *internal.Logger) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		sheet:    "Sheet1",
		bounds:   bounds,
		logger:   logger.With("DataReader"),
	}
}

// LoadObservations reads the file and converts every data row into an
// observation. The first row that cannot be parsed or violates the bounds
// rejects the whole file.
func (r *DataReader) LoadObservations(ctx context.Context) ([]dataset.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := r.ReadData()
	if err != nil {
		return nil, err
	}

	observations, err := r.toObservations(data)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: %s has no data rows", core.ErrEmptyDataset, r.filePath)
	}
	return observations, nil
}

// ReadData reads data from Excel or CSV files into structured format
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	case "xlsx":
		return r.readExcelData()
	default:
		return nil, fmt.Errorf("unsupported file type: %s", r.fileType)
	}
}

// readExcelData reads Excel data from the first sheet into structured format
func (r *DataReader) readExcelData() (*ExcelData, error) {
	readStart := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.sheet, err)
	}
	r.logger.Debug("%s read in %.2fms (%d rows)", r.sheet, float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, fmt.Errorf("Excel file must have a header row")
	}
	return r.processRows(rows), nil
}

// readCSVData reads CSV data into structured format
func (r *DataReader) readCSVData() (*ExcelData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	r.logger.Debug("CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	if len(rows) < 1 {
		return nil, fmt.Errorf("CSV file must have a header row")
	}
	return r.processRows(rows), nil
}

// processRows converts raw string rows into ExcelData format
func (r *DataReader) processRows(rows [][]string) *ExcelData {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = canonicalColumn(strings.ToLower(strings.TrimSpace(header)))
	}

	dataRows := make([]RawRowData, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		dataRows = append(dataRows, rowData)
	}

	r.logger.Info("%s file processed (%d columns, %d rows)", strings.ToUpper(r.fileType), len(headers), len(dataRows))
	return &ExcelData{Headers: headers, Rows: dataRows}
}

func (r *DataReader) toObservations(data *ExcelData) ([]dataset.Observation, error) {
	if err := requireColumns(data.Headers); err != nil {
		return nil, err
	}

	observations := make([]dataset.Observation, 0, len(data.Rows))
	for i, row := range data.Rows {
		// Line numbers count the header as line 1.
		line := i + 2
		o, err := parseObservation(row)
		if err != nil {
			return nil, core.NewInvalidObservationError(line, err.Error())
		}
		if reason := r.bounds.Violation(o); reason != "" {
			return nil, core.NewInvalidObservationError(line, reason)
		}
		observations = append(observations, o)
	}
	return observations, nil
}

// requireColumns checks the header carries every column needed to build an
// observation. year and month may instead come from a date column.
func requireColumns(headers []string) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	for _, col := range Columns {
		if present[col] {
			continue
		}
		if (col == "year" || col == "month") && present["date"] {
			continue
		}
		return fmt.Errorf("%w: missing column %q", core.ErrInvalidObservation, col)
	}
	return nil
}

func parseObservation(row RawRowData) (dataset.Observation, error) {
	var o dataset.Observation
	var err error

	if row["year"] == "" || row["month"] == "" {
		date, perr := time.Parse("2006-01-02", row["date"])
		if perr != nil {
			return o, fmt.Errorf("date %q is not YYYY-MM-DD", row["date"])
		}
		o.Year, o.Month = date.Year(), int(date.Month())
	} else {
		if o.Year, err = parseInt(row, "year"); err != nil {
			return o, err
		}
		if o.Month, err = parseInt(row, "month"); err != nil {
			return o, err
		}
	}

	o.City = row["city"]
	o.Variety = row["variety"]

	if o.Rainfall, err = parseFloat(row, "rainfall"); err != nil {
		return o, err
	}
	if o.Arrivals, err = parseFloat(row, "arrivals"); err != nil {
		return o, err
	}
	if o.Temperature, err = parseFloat(row, "temperature"); err != nil {
		return o, err
	}
	if o.Price, err = parseFloat(row, "price"); err != nil {
		return o, err
	}
	return o, nil
}

func parseInt(row RawRowData, column string) (int, error) {
	// Spreadsheets frequently store integers as "2020.0".
	v, err := strconv.ParseFloat(row[column], 64)
	if err != nil || v != float64(int(v)) {
		return 0, fmt.Errorf("%s %q is not an integer", column, row[column])
	}
	return int(v), nil
}

func parseFloat(row RawRowData, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(row[column], ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s %q is not a number", column, row[column])
	}
	return v, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
