// Package metrics computes the year-scoped reading summary from normalized
// records and the ledger history.
package metrics

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/ledger"
	"github.com/banshee-data/reading.report/internal/monitoring"
	"github.com/banshee-data/reading.report/internal/timeutil"
	"github.com/banshee-data/reading.report/internal/units"
)

// FeedbackNoNewEntries is reported when the ledger is too short or the
// source did not grow since the previous run.
const FeedbackNoNewEntries = "No new entries to show."

// RankedBook is one row of the top-scored ranking.
type RankedBook struct {
	Name   string
	Author string
	Score  float64
}

// LastCompleted identifies the most recently finished book of the resolved
// year.
type LastCompleted struct {
	Name    string
	Author  string
	Score   *float64
	EndDate time.Time
}

// NewEntry is a recently added record, projected to name and author.
type NewEntry struct {
	Name   string
	Author string
}

// Result is the summary produced by one Compute call. It is created once
// and not mutated after return.
type Result struct {
	// Counts. OverallTotal, Ongoing, and Dropped are global across all
	// years; TotalCurrent is scoped to the resolved year.
	OverallTotal int
	TotalCurrent int
	Ongoing      int
	Dropped      int

	// Means over non-nil derived fields, rounded to 2 decimals. The
	// *Current pair covers only the resolved-year subset.
	MeanPagesPerDay        float64
	MeanTimeReading        float64
	MeanPagesPerDayCurrent float64
	MeanTimeReadingCurrent float64

	Best          []RankedBook   // top 3 of the resolved year by score
	Last          *LastCompleted // nil when nothing completed this year
	DaysSinceLast *int           // nil when Last is nil

	FeedbackNew string
	NewEntries  []NewEntry

	ResolvedYear int
	YearNote     string // informational clamp note, empty when in range
}

// Compute derives the reading summary for requestedYear. Out-of-range years
// clamp to the newest year present in the data with an informational note;
// a non-positive year is rejected before any computation. The clock supplies
// "today" for the days-since-last measure.
func Compute(booksIn []books.Book, legacy books.Legacy, history []ledger.Entry, requestedYear int, clock timeutil.Clock) (*Result, error) {
	if requestedYear <= 0 {
		return nil, domainerrors.Validationf("year must be a positive integer, got %d", requestedYear)
	}
	if len(booksIn) == 0 {
		return nil, domainerrors.Validation("empty dataset: books")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	resolved, note := resolveYear(booksIn, requestedYear)
	if note != "" {
		monitoring.Logf("%s", note)
	}

	subset := filterYear(booksIn, resolved)

	res := &Result{ResolvedYear: resolved, YearNote: note}

	var completedGlobal int
	for _, b := range booksIn {
		switch b.Status {
		case books.StatusCompleted:
			completedGlobal++
		case books.StatusOngoing:
			res.Ongoing++
		case books.StatusDropped:
			res.Dropped++
		}
	}
	res.OverallTotal = legacy.RowCount() + completedGlobal

	for _, b := range subset {
		if b.Completed() {
			res.TotalCurrent++
		}
	}

	res.MeanPagesPerDay = roundedMean(pagesPerDayValues(booksIn))
	res.MeanTimeReading = roundedMean(daysValues(booksIn))
	res.MeanPagesPerDayCurrent = roundedMean(pagesPerDayValues(subset))
	res.MeanTimeReadingCurrent = roundedMean(daysValues(subset))

	res.Best = rankBest(subset)
	res.Last = lastCompleted(subset)
	if res.Last != nil {
		d := units.WholeDays(res.Last.EndDate, clock.Now())
		res.DaysSinceLast = &d
	}

	res.NewEntries, res.FeedbackNew = detectNewEntries(booksIn, history, res.Last)

	return res, nil
}

// resolveYear clamps an out-of-range request to the newest year present.
func resolveYear(booksIn []books.Book, requested int) (int, string) {
	minYear, maxYear := booksIn[0].Year, booksIn[0].Year
	for _, b := range booksIn[1:] {
		if b.Year < minYear {
			minYear = b.Year
		}
		if b.Year > maxYear {
			maxYear = b.Year
		}
	}

	if requested >= minYear && requested <= maxYear {
		return requested, ""
	}

	note := fmt.Sprintf("year %d is outside the dataset range %d-%d; using %d",
		requested, minYear, maxYear, maxYear)
	return maxYear, note
}

func filterYear(booksIn []books.Book, year int) []books.Book {
	subset := make([]books.Book, 0, len(booksIn))
	for _, b := range booksIn {
		if b.Year == year {
			subset = append(subset, b)
		}
	}
	return subset
}

func pagesPerDayValues(booksIn []books.Book) []float64 {
	vals := make([]float64, 0, len(booksIn))
	for _, b := range booksIn {
		if b.PagesPerDay != nil {
			vals = append(vals, *b.PagesPerDay)
		}
	}
	return vals
}

func daysValues(booksIn []books.Book) []float64 {
	vals := make([]float64, 0, len(booksIn))
	for _, b := range booksIn {
		if b.Days != nil {
			vals = append(vals, float64(*b.Days))
		}
	}
	return vals
}

// roundedMean is the arithmetic mean rounded to 2 decimals; an empty input
// yields 0 rather than NaN.
func roundedMean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return units.Round2(stat.Mean(vals, nil))
}

// rankBest returns the top 3 records of the subset by score, descending.
// Records without a score are excluded. Equal scores keep their input
// order, and ties at the cutoff are dropped: the ranking never exceeds
// three rows.
func rankBest(subset []books.Book) []RankedBook {
	scored := make([]books.Book, 0, len(subset))
	for _, b := range subset {
		if b.Score != nil {
			scored = append(scored, b)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Score > *scored[j].Score
	})

	if len(scored) > 3 {
		scored = scored[:3]
	}

	ranked := make([]RankedBook, len(scored))
	for i, b := range scored {
		ranked[i] = RankedBook{Name: b.Name, Author: b.Author, Score: *b.Score}
	}
	return ranked
}

// lastCompleted picks the completed record with the greatest end date via
// an explicit ascending sort, never relying on input order.
func lastCompleted(subset []books.Book) *LastCompleted {
	finished := make([]books.Book, 0, len(subset))
	for _, b := range subset {
		if b.Completed() && b.EndDate != nil {
			finished = append(finished, b)
		}
	}
	if len(finished) == 0 {
		return nil
	}

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].EndDate.Before(*finished[j].EndDate)
	})

	b := finished[len(finished)-1]
	return &LastCompleted{Name: b.Name, Author: b.Author, Score: b.Score, EndDate: *b.EndDate}
}

// detectNewEntries compares the two most recent ledger counts and, when the
// source grew, surfaces the last diff rows in their existing order. This is
// a positional tail slice, not a content diff: it assumes the source only
// ever appends rows. The "since" date prefers the last completed book and
// falls back to the previous ledger timestamp.
func detectNewEntries(all []books.Book, history []ledger.Entry, last *LastCompleted) ([]NewEntry, string) {
	if len(history) < 2 {
		return nil, FeedbackNoNewEntries
	}

	diff := history[len(history)-1].RecordCount - history[len(history)-2].RecordCount
	if diff <= 0 {
		return nil, FeedbackNoNewEntries
	}
	if diff > len(all) {
		diff = len(all)
	}

	tail := all[len(all)-diff:]
	entries := make([]NewEntry, len(tail))
	for i, b := range tail {
		entries[i] = NewEntry{Name: b.Name, Author: b.Author}
	}

	since := history[len(history)-2].Timestamp
	if last != nil {
		since = last.EndDate
	}
	feedback := fmt.Sprintf("New entries since %s: %d.", since.Format("2006-01-02"), diff)

	return entries, feedback
}
