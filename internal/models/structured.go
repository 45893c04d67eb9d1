package models

// StructuredPayload carries tabular content extracted from spreadsheets
// and CSV files, preserved as rows/columns rather than flattened text.
// It rides along in Document.Metadata and selects the row-based chunking
// strategy downstream.
type StructuredPayload struct {
	Sheets []Sheet `json:"sheets"`
}

// Sheet is one sheet (or the single logical table of a CSV file).
type Sheet struct {
	Name    string     `json:"name"`
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows"`
}

// TotalRows counts data rows across all sheets.
func (p *StructuredPayload) TotalRows() int {
	n := 0
	for _, s := range p.Sheets {
		n += len(s.Rows)
	}
	return n
}

// SheetNames lists the sheet names in order.
func (p *StructuredPayload) SheetNames() []string {
	names := make([]string, 0, len(p.Sheets))
	for _, s := range p.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// Empty reports whether the payload holds no data rows at all.
func (p *StructuredPayload) Empty() bool {
	return p == nil || p.TotalRows() == 0
}
