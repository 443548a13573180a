package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reading.report/internal/archive"
	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
	"github.com/banshee-data/reading.report/internal/ledger"
	"github.com/banshee-data/reading.report/internal/metrics"
	"github.com/banshee-data/reading.report/internal/monitoring"
	"github.com/banshee-data/reading.report/internal/report"
	"github.com/banshee-data/reading.report/internal/snapshot"
	"github.com/banshee-data/reading.report/internal/timeutil"
)

type fakeExtractor struct {
	rawBooks    books.Table
	rawLegacy   books.Table
	err         error
	calls       int
	sawDeadline bool
}

func (f *fakeExtractor) Tables(ctx context.Context) (books.Table, books.Table, error) {
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.err != nil {
		return books.Table{}, books.Table{}, f.err
	}
	return f.rawBooks, f.rawLegacy, nil
}

type fakeArchiver struct {
	upserted  [][]books.Book
	runs      []archive.Run
	upsertErr error
}

func (f *fakeArchiver) UpsertBooks(ctx context.Context, records []books.Book) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	f.upserted = append(f.upserted, records)
	return len(records), nil
}

func (f *fakeArchiver) RecordRun(ctx context.Context, run archive.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func rawTables() (books.Table, books.Table) {
	booksTable := books.Table{
		Header: books.RequiredColumns(),
		Rows: [][]string{
			{"Hyperion", "Dan Simmons", "Completed", "2025-01-01", "2025-01-13", "482", "9.5", "2025"},
			{"Dune", "Frank Herbert", "Ongoing", "2025-02-01", "", "412", "", "2025"},
		},
	}
	legacyTable := books.Table{
		Header: []string{"book_name", "author"},
		Rows:   [][]string{{"Ulysses", "James Joyce"}},
	}
	return booksTable, legacyTable
}

type env struct {
	fs    *fsutil.MemoryFileSystem
	ext   *fakeExtractor
	arc   *fakeArchiver
	out   *bytes.Buffer
	clock *timeutil.MockClock
}

func newEnv() *env {
	rawBooks, rawLegacy := rawTables()
	return &env{
		fs:    fsutil.NewMemoryFileSystem(),
		ext:   &fakeExtractor{rawBooks: rawBooks, rawLegacy: rawLegacy},
		arc:   &fakeArchiver{},
		out:   &bytes.Buffer{},
		clock: timeutil.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	}
}

func (e *env) pipeline(t *testing.T, mutate func(*Options)) *Pipeline {
	t.Helper()
	opts := Options{
		Extractor: e.ext,
		Archiver:  e.arc,
		FS:        e.fs,
		Clock:     e.clock,
		Out:       e.out,
		DataDir:   "data",
		Snapshots: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

// muteLogs silences the package logger for the duration of the test.
func muteLogs(t *testing.T) {
	t.Helper()
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

// captureLogs collects formatted log lines for the duration of the test.
func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return &lines
}

func TestNew_RequiresExtractor(t *testing.T) {
	_, err := New(Options{DataDir: "data"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrInternal)
}

func TestNew_RequiresDataDir(t *testing.T) {
	_, err := New(Options{Extractor: &fakeExtractor{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestRun_HappyPath(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 2025, res.ResolvedYear)
	assert.Equal(t, 1, res.TotalCurrent)
	assert.Equal(t, 1, res.Ongoing)
	assert.Equal(t, 2, res.OverallTotal) // 1 legacy + 1 completed

	data, err := e.fs.ReadFile(filepath.Join("data", ledger.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "date,records_current")
	assert.Contains(t, string(data), ",2\n")

	assert.True(t, e.fs.Exists(filepath.Join("data", snapshot.RawBooksFile)))
	assert.True(t, e.fs.Exists(filepath.Join("data", snapshot.RawLegacyFile)))
	assert.True(t, e.fs.Exists(filepath.Join("data", snapshot.NormalizedFile)))

	require.Len(t, e.arc.upserted, 1)
	assert.Len(t, e.arc.upserted[0], 2)
	require.Len(t, e.arc.runs, 1)
	run := e.arc.runs[0]
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.RowCount)
	assert.True(t, run.LedgerAppended)
	assert.True(t, run.StartedAt.Equal(e.clock.Now()))

	output := e.out.String()
	assert.Contains(t, output, report.TitleSummary)
	assert.Contains(t, output, "Hyperion")

	assert.False(t, e.fs.Exists(filepath.Join("data", report.ChartFileName)))
}

func TestRun_StageLogOrder(t *testing.T) {
	lines := captureLogs(t)
	e := newEnv()
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	stages := []string{
		"Starting extraction...",
		"Transforming data...",
		"Loading data...",
		"Getting summary and creating report...",
	}
	var got []string
	for _, line := range *lines {
		for _, s := range stages {
			if line == s {
				got = append(got, line)
			}
		}
	}
	assert.Equal(t, stages, got)
}

func TestRun_ExtractionErrorWritesNothing(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	e.ext.err = domainerrors.Extraction("credentials rejected")
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrExtraction)

	assert.False(t, e.fs.Exists(filepath.Join("data", ledger.FileName)))
	assert.Empty(t, e.arc.runs)
	assert.Zero(t, e.out.Len())
}

func TestRun_TransformErrorWritesNothing(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	e.ext.rawBooks.Rows = append(e.ext.rawBooks.Rows,
		[]string{"Solaris", "Stanisław Lem", "Completed", "not-a-date", "", "204", "8", "2025"})
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrTransform)

	assert.False(t, e.fs.Exists(filepath.Join("data", ledger.FileName)))
	assert.False(t, e.fs.Exists(filepath.Join("data", snapshot.RawBooksFile)))
	assert.Empty(t, e.arc.upserted)
	assert.Empty(t, e.arc.runs)
}

func TestRun_ArchiveErrorAbortsBeforeReport(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	e.arc.upsertErr = domainerrors.Load("disk full")
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrLoad)
	assert.Zero(t, e.out.Len())
}

func TestRun_RepeatRunSkipsLedgerAppend(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	e.clock.Advance(24 * time.Hour)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	history, err := ledger.New(e.fs).History("data")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.Len(t, e.arc.runs, 2)
	assert.True(t, e.arc.runs[0].LedgerAppended)
	assert.False(t, e.arc.runs[1].LedgerAppended)

	assert.Equal(t, metrics.FeedbackNoNewEntries, res.FeedbackNew)
}

func TestRun_NewEntriesAfterGrowth(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, nil)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	e.ext.rawBooks.Rows = append(e.ext.rawBooks.Rows,
		[]string{"Solaris", "Stanisław Lem", "Completed", "2025-03-01", "2025-03-10", "204", "8", "2025"})
	e.clock.Advance(24 * time.Hour)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.NewEntries, 1)
	assert.Equal(t, "Solaris", res.NewEntries[0].Name)
	assert.Equal(t, "New entries since 2025-03-10: 1.", res.FeedbackNew)
}

func TestRun_YearZeroResolvesFromClock(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	e.clock.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	p := e.pipeline(t, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	// Data only covers 2025, so the clock's 2026 clamps down with a note.
	assert.Equal(t, 2025, res.ResolvedYear)
	assert.NotEmpty(t, res.YearNote)
}

func TestRun_ExplicitYear(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	e.clock.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	p := e.pipeline(t, func(o *Options) { o.Year = 2025 })

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2025, res.ResolvedYear)
	assert.Empty(t, res.YearNote)
}

func TestRun_SnapshotsDisabled(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, func(o *Options) { o.Snapshots = false })

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, e.fs.Exists(filepath.Join("data", ledger.FileName)))
	assert.False(t, e.fs.Exists(filepath.Join("data", snapshot.RawBooksFile)))
	assert.False(t, e.fs.Exists(filepath.Join("data", snapshot.NormalizedFile)))
}

func TestRun_ChartWritesReportPage(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, func(o *Options) { o.Chart = true })

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	data, err := e.fs.ReadFile(filepath.Join("data", report.ChartFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echarts")
}

func TestRun_NilArchiverSkipsArchiveStage(t *testing.T) {
	muteLogs(t)
	e := newEnv()
	p := e.pipeline(t, func(o *Options) { o.Archiver = nil })

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, e.arc.runs)
}

func TestRun_ExtractTimeoutSetsDeadline(t *testing.T) {
	muteLogs(t)

	e := newEnv()
	p := e.pipeline(t, func(o *Options) { o.ExtractTimeout = 5 * time.Second })
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, e.ext.sawDeadline)

	e2 := newEnv()
	p2 := e2.pipeline(t, nil)
	_, err = p2.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, e2.ext.sawDeadline)
}
