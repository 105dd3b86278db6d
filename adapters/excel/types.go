package excel

// RawRowData represents a row of raw Excel data as string key-value pairs
type RawRowData map[string]string

// ExcelData represents the complete Excel dataset
type ExcelData struct {
	Headers []string     // Column headers, lower-cased and trimmed
	Rows    []RawRowData // Data rows
}

// Columns written on export, in order. The reader accepts the same names
// plus the aliases below.
var Columns = []string{"year", "month", "city", "variety", "rainfall", "arrivals", "temperature", "price"}

// columnAliases maps alternative header names onto canonical columns
var columnAliases = map[string]string{
	"market":         "city",
	"rainfall_mm":    "rainfall",
	"arrivals_qtl":   "arrivals",
	"temperature_c":  "temperature",
	"price_per_qtl":  "price",
	"modal_price":    "price",
	"commodity_type": "variety",
}

func canonicalColumn(header string) string {
	if alias, ok := columnAliases[header]; ok {
		return alias
	}
	return header
}
