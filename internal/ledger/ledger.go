// Package ledger persists the append-only record-count history used to
// detect source dataset growth between runs without content diffing.
package ledger

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strconv"
	"time"

	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
)

// FileName is the ledger file within the data directory.
const FileName = "raw_records.csv"

var header = []string{"date", "records_current"}

// Entry is one (timestamp, record count) snapshot. Entries are ordered and
// append-only; no two consecutive entries share a record count. The ledger
// is not validated to be globally monotonic: a later run with fewer source
// rows is accepted without error.
type Entry struct {
	Timestamp   time.Time
	RecordCount int
}

// Ledger reads and appends the record-count history in a data directory.
// Single-writer, single-process access per invocation; concurrent writers
// race and may violate the dedup invariant.
type Ledger struct {
	fs fsutil.FileSystem
}

// New creates a Ledger backed by the given filesystem. A nil filesystem
// defaults to the operating system.
func New(fs fsutil.FileSystem) *Ledger {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Ledger{fs: fs}
}

// AppendIfChanged records (timestamp, count) unless the last entry already
// carries the same count. On first use it creates the ledger file with a
// header and zero rows. It returns whether a row was written, so repeated
// runs against an unchanged source are no-ops.
func (l *Ledger) AppendIfChanged(dir string, timestamp time.Time, count int) (bool, error) {
	if count < 0 {
		return false, domainerrors.Validationf("record count must be non-negative, got %d", count)
	}

	if err := l.fs.MkdirAll(dir, 0755); err != nil {
		return false, domainerrors.Wrap(err, domainerrors.CodeLoad, "creating ledger directory")
	}

	path := filepath.Join(dir, FileName)
	if !l.fs.Exists(path) {
		if err := l.writeHeader(path); err != nil {
			return false, err
		}
	}

	entries, err := l.History(dir)
	if err != nil {
		return false, err
	}

	if len(entries) > 0 && entries[len(entries)-1].RecordCount == count {
		return false, nil
	}

	f, err := l.fs.OpenAppend(path)
	if err != nil {
		return false, domainerrors.Wrap(err, domainerrors.CodeLoad, "opening ledger for append")
	}

	w := csv.NewWriter(f)
	w.Write([]string{timestamp.Format(time.RFC3339Nano), strconv.Itoa(count)})
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return false, domainerrors.Wrap(err, domainerrors.CodeLoad, "appending ledger entry")
	}
	if err := f.Close(); err != nil {
		return false, domainerrors.Wrap(err, domainerrors.CodeLoad, "closing ledger")
	}

	return true, nil
}

// History reads every entry in the ledger, oldest first.
func (l *Ledger) History(dir string) ([]Entry, error) {
	path := filepath.Join(dir, FileName)

	data, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "reading ledger")
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "parsing ledger")
	}

	if len(records) == 0 {
		return nil, domainerrors.Load("ledger file has no header row")
	}
	if len(records[0]) != 2 || records[0][0] != header[0] || records[0][1] != header[1] {
		return nil, domainerrors.Loadf("unexpected ledger header: %v", records[0])
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeLoad, "ledger row %d: bad timestamp", i+1)
		}
		count, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeLoad, "ledger row %d: bad record count", i+1)
		}
		if count < 0 {
			return nil, domainerrors.Loadf("ledger row %d: negative record count %d", i+1, count)
		}
		entries = append(entries, Entry{Timestamp: ts, RecordCount: count})
	}

	return entries, nil
}

func (l *Ledger) writeHeader(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	w.Flush()
	if err := w.Error(); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "encoding ledger header")
	}

	if err := l.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "creating ledger file")
	}
	return nil
}
