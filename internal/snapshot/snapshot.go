// Package snapshot persists pipeline stage tables to the data directory for
// inspection across runs. Files use fixed names with overwrite semantics so
// reruns never fail on leftovers from a prior run.
package snapshot

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
	"github.com/banshee-data/reading.report/internal/units"
)

// Snapshot file names within the data directory.
const (
	RawBooksFile   = "raw_books_current.csv"
	RawLegacyFile  = "raw_consolidate.csv"
	NormalizedFile = "books.csv"
)

const dateLayout = "2006-01-02"

// Store writes and reads stage snapshots.
type Store struct {
	fs fsutil.FileSystem
}

// New creates a Store backed by the given filesystem. A nil filesystem
// defaults to the operating system.
func New(fs fsutil.FileSystem) *Store {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Store{fs: fs}
}

// WriteRaw persists both source tables verbatim.
func (s *Store) WriteRaw(dir string, rawBooks, rawLegacy books.Table) error {
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "creating snapshot directory")
	}

	if err := s.writeTable(filepath.Join(dir, RawBooksFile), rawBooks); err != nil {
		return err
	}
	return s.writeTable(filepath.Join(dir, RawLegacyFile), rawLegacy)
}

// WriteNormalized persists the normalized records, derived fields included.
func (s *Store) WriteNormalized(dir string, normalized []books.Book) error {
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "creating snapshot directory")
	}

	t := books.Table{Header: normalizedHeader()}
	for _, b := range normalized {
		t.Rows = append(t.Rows, normalizedRow(b))
	}
	return s.writeTable(filepath.Join(dir, NormalizedFile), t)
}

// ReadNormalized loads the normalized snapshot back into records.
func (s *Store) ReadNormalized(dir string) ([]books.Book, error) {
	path := filepath.Join(dir, NormalizedFile)

	data, err := s.fs.ReadFile(path)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "reading normalized snapshot")
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "parsing normalized snapshot")
	}
	if len(records) == 0 {
		return nil, domainerrors.Load("normalized snapshot has no header row")
	}

	want := normalizedHeader()
	if len(records[0]) != len(want) {
		return nil, domainerrors.Loadf("unexpected snapshot header: %v", records[0])
	}
	for i, h := range records[0] {
		if h != want[i] {
			return nil, domainerrors.Loadf("unexpected snapshot header: %v", records[0])
		}
	}

	out := make([]books.Book, 0, len(records)-1)
	for i, row := range records[1:] {
		b, err := parseNormalizedRow(row)
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeLoad, "snapshot row %d", i+1)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) writeTable(path string, t books.Table) error {
	f, err := s.fs.Create(path)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeLoad, "creating %s", filepath.Base(path))
	}

	w := csv.NewWriter(f)
	w.Write(t.Header)
	for _, row := range t.Rows {
		w.Write(row)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return domainerrors.Wrapf(err, domainerrors.CodeLoad, "writing %s", filepath.Base(path))
	}
	if err := f.Close(); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeLoad, "closing %s", filepath.Base(path))
	}
	return nil
}

func normalizedHeader() []string {
	return append(books.RequiredColumns(), "days", "pages_per_day")
}

func normalizedRow(b books.Book) []string {
	row := []string{
		b.Name,
		b.Author,
		string(b.Status),
		b.StartDate.Format(dateLayout),
		"",
		strconv.Itoa(b.TotalPages),
		"",
		strconv.Itoa(b.Year),
		"",
		"",
	}
	if b.EndDate != nil {
		row[4] = b.EndDate.Format(dateLayout)
	}
	if b.Score != nil {
		row[6] = strconv.FormatFloat(*b.Score, 'g', -1, 64)
	}
	if b.Days != nil {
		row[8] = strconv.Itoa(*b.Days)
	}
	if b.PagesPerDay != nil {
		row[9] = strconv.FormatFloat(*b.PagesPerDay, 'g', -1, 64)
	}
	return row
}

func parseNormalizedRow(row []string) (books.Book, error) {
	b := books.Book{
		Name:   row[0],
		Author: row[1],
		Status: books.Status(row[2]),
	}

	start, err := units.ParseDate(row[3])
	if err != nil {
		return books.Book{}, err
	}
	b.StartDate = start

	if row[4] != "" {
		end, err := units.ParseDate(row[4])
		if err != nil {
			return books.Book{}, err
		}
		b.EndDate = &end
	}

	pages, err := strconv.Atoi(row[5])
	if err != nil {
		return books.Book{}, err
	}
	b.TotalPages = pages

	if row[6] != "" {
		score, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return books.Book{}, err
		}
		b.Score = &score
	}

	year, err := strconv.Atoi(row[7])
	if err != nil {
		return books.Book{}, err
	}
	b.Year = year

	if row[8] != "" {
		days, err := strconv.Atoi(row[8])
		if err != nil {
			return books.Book{}, err
		}
		b.Days = &days
	}
	if row[9] != "" {
		rate, err := strconv.ParseFloat(row[9], 64)
		if err != nil {
			return books.Book{}, err
		}
		b.PagesPerDay = &rate
	}

	return b, nil
}
