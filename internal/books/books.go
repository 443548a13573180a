// Package books defines the tabular and normalized record types shared by
// the pipeline stages.
package books

import "time"

// Column names of the books worksheet. The transformer validates these are
// all present before binding rows; the snapshot writer reuses them as the
// normalized CSV header.
const (
	ColName       = "book_name"
	ColAuthor     = "author"
	ColStatus     = "status"
	ColStartDate  = "start_date"
	ColEndDate    = "end_date"
	ColTotalPages = "total_pages"
	ColScore      = "score"
	ColYear       = "year"
)

// RequiredColumns returns the columns the books worksheet must carry, in
// canonical order.
func RequiredColumns() []string {
	return []string{
		ColName, ColAuthor, ColStatus, ColStartDate,
		ColEndDate, ColTotalPages, ColScore, ColYear,
	}
}

// Table is a raw tabular dataset as returned by the source: one header row
// plus zero or more data rows, all values stringified.
type Table struct {
	Header []string
	Rows   [][]string
}

// RowCount returns the number of data rows.
func (t Table) RowCount() int {
	return len(t.Rows)
}

// Empty reports whether the table has no data rows. A header-only table
// counts as empty.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// ColumnIndex returns the position of the named column in the header.
func (t Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Header {
		if h == name {
			return i, true
		}
	}
	return 0, false
}

// Status classifies a book record. Unknown source values are carried
// through as-is and simply match none of the known states.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusOngoing   Status = "Ongoing"
	StatusDropped   Status = "Dropped"
)

// Book is one normalized row of the books worksheet. Nil pointer fields
// mean the source value was absent or tolerated as unparseable; see the
// transform package for the per-column policy. Records are immutable once
// produced and owned by the run that produced them.
type Book struct {
	Name       string
	Author     string
	Status     Status
	StartDate  time.Time
	EndDate    *time.Time // nil = not yet finished
	TotalPages int
	Score      *float64 // nil = source value not numeric
	Year       int

	// Derived by the transformer, not part of the source schema.
	Days        *int     // whole days from StartDate to EndDate; nil if EndDate nil
	PagesPerDay *float64 // TotalPages/Days rounded to 2 decimals; nil if Days nil or zero
}

// Completed reports whether the record is a finished reading.
func (b Book) Completed() bool {
	return b.Status == StatusCompleted
}

// Legacy holds the consolidated dataset in its previous format. It passes
// through the pipeline untouched; only its row count participates in the
// summary metrics.
type Legacy struct {
	Table Table
}

// RowCount returns the number of consolidated rows.
func (l Legacy) RowCount() int {
	return l.Table.RowCount()
}
