// Package archive keeps a queryable history of pipeline runs and normalized
// records in a local SQLite database. The schema is managed with embedded
// migrations so existing archives upgrade in place.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dateLayout = "2006-01-02"

type Archive struct {
	*sql.DB
}

// Open opens or creates the archive database at path.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "opening archive database")
	}

	// Pragmas are per-connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		db.Close()
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "applying archive pragmas")
	}

	return &Archive{db}, nil
}

// Migrate applies all pending schema migrations. Running against an archive
// that is already at the latest version is a no-op.
func (a *Archive) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "loading embedded migrations")
	}

	driver, err := sqlite.WithInstance(a.DB, &sqlite.Config{})
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "creating sqlite migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "creating migrate instance")
	}
	m.Log = &migrateLogger{logf: monitoring.Prefixed("[migrate] ")}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return domainerrors.Wrap(err, domainerrors.CodeLoad, "running archive migrations")
	}

	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct {
	logf func(format string, v ...interface{})
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logf(format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Run records one pipeline execution.
type Run struct {
	ID             string
	StartedAt      time.Time
	RowCount       int
	LedgerAppended bool
}

func (r *Run) String() string {
	return fmt.Sprintf("Run %s: %d records at %s (ledger appended: %v)",
		r.ID, r.RowCount, r.StartedAt.Format(time.RFC3339), r.LedgerAppended)
}

// RecordRun stores a run entry.
func (a *Archive) RecordRun(ctx context.Context, run Run) error {
	_, err := a.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, row_count, ledger_appended) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.RowCount, run.LedgerAppended)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeLoad, "recording run %s", run.ID)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (a *Archive) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := a.QueryContext(ctx,
		`SELECT run_id, started_at, row_count, ledger_appended FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "listing runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			startNs int64
		)
		if err := rows.Scan(&r.ID, &startNs, &r.RowCount, &r.LedgerAppended); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "scanning run")
		}
		r.StartedAt = time.Unix(0, startNs).UTC()
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "listing runs")
	}

	return runs, nil
}

// UpsertBooks inserts or refreshes normalized records keyed by
// (book_name, author, year). Returns the number of records written.
func (a *Archive) UpsertBooks(ctx context.Context, records []books.Book) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := a.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeLoad, "beginning archive transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO books (book_name, author, status, start_date, end_date, total_pages, score, year, days, pages_per_day, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec')) ON CONFLICT(book_name, author, year) DO UPDATE SET status=excluded.status, start_date=excluded.start_date, end_date=excluded.end_date, total_pages=excluded.total_pages, score=excluded.score, days=excluded.days, pages_per_day=excluded.pages_per_day, updated_at=UNIXEPOCH('subsec')`)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeLoad, "preparing book upsert")
	}
	defer stmt.Close()

	for _, b := range records {
		_, err := stmt.ExecContext(ctx,
			b.Name, b.Author, string(b.Status), b.StartDate.Format(dateLayout),
			nullableDate(b.EndDate), b.TotalPages, nullableFloat(b.Score),
			b.Year, nullableInt(b.Days), nullableFloat(b.PagesPerDay))
		if err != nil {
			return 0, domainerrors.Wrapf(err, domainerrors.CodeLoad, "archiving %q", b.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeLoad, "committing archive transaction")
	}

	return len(records), nil
}

// Books returns all archived records ordered by year, then name.
func (a *Archive) Books(ctx context.Context) ([]books.Book, error) {
	rows, err := a.QueryContext(ctx,
		`SELECT book_name, author, status, start_date, end_date, total_pages, score, year, days, pages_per_day FROM books ORDER BY year, book_name`)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "listing archived books")
	}
	defer rows.Close()

	var out []books.Book
	for rows.Next() {
		var (
			b        books.Book
			status   string
			start    string
			end      sql.NullString
			score    sql.NullFloat64
			days     sql.NullInt64
			pagesDay sql.NullFloat64
		)
		if err := rows.Scan(&b.Name, &b.Author, &status, &start, &end, &b.TotalPages, &score, &b.Year, &days, &pagesDay); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "scanning archived book")
		}

		b.Status = books.Status(status)

		startDate, err := time.Parse(dateLayout, start)
		if err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeLoad, "archived start date for %q", b.Name)
		}
		b.StartDate = startDate

		if end.Valid {
			endDate, err := time.Parse(dateLayout, end.String)
			if err != nil {
				return nil, domainerrors.Wrapf(err, domainerrors.CodeLoad, "archived end date for %q", b.Name)
			}
			b.EndDate = &endDate
		}
		if score.Valid {
			v := score.Float64
			b.Score = &v
		}
		if days.Valid {
			v := int(days.Int64)
			b.Days = &v
		}
		if pagesDay.Valid {
			v := pagesDay.Float64
			b.PagesPerDay = &v
		}

		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeLoad, "listing archived books")
	}

	return out, nil
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
