// Package transform normalizes the raw books dataset: type coercion, date
// parsing, and derived duration and rate fields. The legacy dataset passes
// through unchanged.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/units"
)

// Normalize validates and converts the raw books table into typed records
// and passes the legacy table through. Both inputs must be non-empty; the
// check runs before any transformation so a bad run leaves nothing half
// done.
func Normalize(rawBooks, rawLegacy books.Table) ([]books.Book, books.Legacy, error) {
	if rawBooks.Empty() {
		return nil, books.Legacy{}, domainerrors.Validation("empty dataset: books")
	}
	if rawLegacy.Empty() {
		return nil, books.Legacy{}, domainerrors.Validation("empty dataset: legacy")
	}

	cols, err := bindColumns(rawBooks)
	if err != nil {
		return nil, books.Legacy{}, err
	}

	normalized := make([]books.Book, 0, rawBooks.RowCount())
	for i, row := range rawBooks.Rows {
		b, err := normalizeRow(row, cols, i+1)
		if err != nil {
			return nil, books.Legacy{}, err
		}
		normalized = append(normalized, b)
	}

	return normalized, books.Legacy{Table: rawLegacy}, nil
}

// columnIndex holds the bound positions of the required books columns.
type columnIndex struct {
	name       int
	author     int
	status     int
	startDate  int
	endDate    int
	totalPages int
	score      int
	year       int
	width      int
}

func bindColumns(t books.Table) (columnIndex, error) {
	var missing []string
	bind := func(name string) int {
		i, ok := t.ColumnIndex(name)
		if !ok {
			missing = append(missing, name)
		}
		return i
	}

	cols := columnIndex{
		name:       bind(books.ColName),
		author:     bind(books.ColAuthor),
		status:     bind(books.ColStatus),
		startDate:  bind(books.ColStartDate),
		endDate:    bind(books.ColEndDate),
		totalPages: bind(books.ColTotalPages),
		score:      bind(books.ColScore),
		year:       bind(books.ColYear),
		width:      len(t.Header),
	}

	if len(missing) > 0 {
		return columnIndex{}, domainerrors.Transformf(
			"missing required column(s): %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func normalizeRow(row []string, cols columnIndex, rowNum int) (books.Book, error) {
	if len(row) != cols.width {
		return books.Book{}, domainerrors.Transformf(
			"row %d has %d values, want %d", rowNum, len(row), cols.width)
	}

	b := books.Book{
		Name:   row[cols.name],
		Author: row[cols.author],
		Status: books.Status(row[cols.status]),
	}

	start, err := units.ParseDate(row[cols.startDate])
	if err != nil {
		return books.Book{}, domainerrors.Wrapf(err, domainerrors.CodeTransform,
			"row %d: column %q", rowNum, books.ColStartDate)
	}
	b.StartDate = start

	// An empty end date means "not yet finished", not a parse failure.
	if raw := strings.TrimSpace(row[cols.endDate]); raw != "" {
		end, err := units.ParseDate(raw)
		if err != nil {
			return books.Book{}, domainerrors.Wrapf(err, domainerrors.CodeTransform,
				"row %d: column %q", rowNum, books.ColEndDate)
		}
		b.EndDate = &end
	}

	pages, err := parseInt(row[cols.totalPages])
	if err != nil {
		return books.Book{}, domainerrors.Wrapf(err, domainerrors.CodeTransform,
			"row %d: column %q", rowNum, books.ColTotalPages)
	}
	b.TotalPages = pages

	year, err := parseInt(row[cols.year])
	if err != nil {
		return books.Book{}, domainerrors.Wrapf(err, domainerrors.CodeTransform,
			"row %d: column %q", rowNum, books.ColYear)
	}
	b.Year = year

	// Score coercion tolerates unparseable values as nil, never an error.
	if v, err := strconv.ParseFloat(strings.TrimSpace(row[cols.score]), 64); err == nil {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			b.Score = &v
		}
	}

	deriveTimeFields(&b)
	return b, nil
}

// deriveTimeFields computes days and pages_per_day. A nil end date leaves
// both nil; zero days leaves pages_per_day nil so the rate never divides
// by zero or produces infinity.
func deriveTimeFields(b *books.Book) {
	if b.EndDate == nil {
		return
	}

	days := units.WholeDays(b.StartDate, *b.EndDate)
	b.Days = &days

	if days == 0 {
		return
	}
	rate := units.Round2(float64(b.TotalPages) / float64(days))
	b.PagesPerDay = &rate
}

// parseInt accepts integer strings and integral floats ("320" or "320.0"),
// the two shapes the source returns for numeric cells.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int(f), nil
}
