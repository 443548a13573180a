// Package pipeline orchestrates a full run: extract the raw worksheets,
// normalize them, persist the ledger, snapshots, and archive, then compute
// the summary and render the report. Stages run strictly in that order and
// the first failure aborts the run, so nothing is persisted from a run whose
// data never validated.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

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
	"github.com/banshee-data/reading.report/internal/transform"
)

// Extractor supplies the raw books and legacy tables. *sheets.Client is the
// production implementation.
type Extractor interface {
	Tables(ctx context.Context) (rawBooks, rawLegacy books.Table, err error)
}

// Archiver persists normalized records and per-run history. *archive.Archive
// is the production implementation.
type Archiver interface {
	UpsertBooks(ctx context.Context, records []books.Book) (int, error)
	RecordRun(ctx context.Context, run archive.Run) error
}

// Options configures a Pipeline. Extractor and DataDir are required;
// everything else has a production default.
type Options struct {
	Extractor Extractor
	Archiver  Archiver          // nil skips the archive stage
	FS        fsutil.FileSystem // nil uses the operating system
	Clock     timeutil.Clock    // nil uses the real clock
	Out       io.Writer         // nil renders the report to stdout

	DataDir        string
	Year           int           // 0 resolves to the clock's current year
	ExtractTimeout time.Duration // 0 means no deadline on extraction
	Color          bool
	Chart          bool
	Snapshots      bool
}

// Pipeline runs the extract-transform-load-report sequence. One Pipeline
// serves one configuration; Run may be called repeatedly.
type Pipeline struct {
	extractor Extractor
	archiver  Archiver
	fs        fsutil.FileSystem
	clock     timeutil.Clock
	out       io.Writer

	ledger *ledger.Ledger
	store  *snapshot.Store

	dataDir        string
	year           int
	extractTimeout time.Duration
	color          bool
	chart          bool
	snapshots      bool
}

// New validates the options and constructs a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil {
		return nil, domainerrors.Internal("pipeline requires an extractor")
	}
	if opts.DataDir == "" {
		return nil, domainerrors.Validation("data directory must not be empty")
	}

	fs := opts.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &Pipeline{
		extractor:      opts.Extractor,
		archiver:       opts.Archiver,
		fs:             fs,
		clock:          clock,
		out:            out,
		ledger:         ledger.New(fs),
		store:          snapshot.New(fs),
		dataDir:        opts.DataDir,
		year:           opts.Year,
		extractTimeout: opts.ExtractTimeout,
		color:          opts.Color,
		chart:          opts.Chart,
		snapshots:      opts.Snapshots,
	}, nil
}

// Run executes one pipeline pass and returns the computed summary. The
// ledger is only appended after the dataset has fully transformed, so a
// malformed source row leaves every artifact untouched.
func (p *Pipeline) Run(ctx context.Context) (*metrics.Result, error) {
	runID := uuid.NewString()
	started := p.clock.Now()

	monitoring.Logf("Starting extraction...")
	rawBooks, rawLegacy, err := p.extract(ctx)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("Transforming data...")
	normalized, legacy, err := transform.Normalize(rawBooks, rawLegacy)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("Loading data...")
	appended, err := p.ledger.AppendIfChanged(p.dataDir, started, rawBooks.RowCount())
	if err != nil {
		return nil, err
	}
	if p.snapshots {
		if err := p.store.WriteRaw(p.dataDir, rawBooks, rawLegacy); err != nil {
			return nil, err
		}
		if err := p.store.WriteNormalized(p.dataDir, normalized); err != nil {
			return nil, err
		}
	}
	history, err := p.ledger.History(p.dataDir)
	if err != nil {
		return nil, err
	}
	if p.archiver != nil {
		n, err := p.archiver.UpsertBooks(ctx, normalized)
		if err != nil {
			return nil, err
		}
		run := archive.Run{
			ID:             runID,
			StartedAt:      started,
			RowCount:       rawBooks.RowCount(),
			LedgerAppended: appended,
		}
		if err := p.archiver.RecordRun(ctx, run); err != nil {
			return nil, err
		}
		monitoring.Logf("Archived %d records.", n)
	}

	monitoring.Logf("Getting summary and creating report...")
	year := p.year
	if year == 0 {
		year = p.clock.Now().Year()
	}
	res, err := metrics.Compute(normalized, legacy, history, year, p.clock)
	if err != nil {
		return nil, err
	}

	report.NewRenderer(p.out, p.color).Render(res)
	if p.chart {
		path, err := report.WriteCharts(p.fs, p.dataDir, res, normalized)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("Report page written to %s.", path)
	}

	monitoring.Logf("Run %s finished in %s.", runID, p.clock.Since(started).Round(time.Millisecond))
	return res, nil
}

// extract calls the extractor under the configured deadline.
func (p *Pipeline) extract(ctx context.Context) (books.Table, books.Table, error) {
	if p.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.extractTimeout)
		defer cancel()
	}
	return p.extractor.Tables(ctx)
}
