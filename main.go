// Command reading-report runs the reading records pipeline once: extract
// the source worksheets, normalize them, persist the ledger, snapshots, and
// archive, then print the summary report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/reading.report/internal/archive"
	"github.com/banshee-data/reading.report/internal/config"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
	"github.com/banshee-data/reading.report/internal/monitoring"
	"github.com/banshee-data/reading.report/internal/pipeline"
	"github.com/banshee-data/reading.report/internal/sheets"
	"github.com/banshee-data/reading.report/internal/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
		flags       config.Flags
	)

	flag.StringVar(&configPath, "config", "", "path to a JSON config file")
	flag.StringVar(&flags.SpreadsheetID, "spreadsheet", "", "source spreadsheet ID")
	flag.StringVar(&flags.DataDir, "data-dir", "", "directory for the ledger, snapshots, and archive")
	flag.StringVar(&flags.ArchivePath, "archive-path", "", "path to the sqlite archive database")
	flag.StringVar(&flags.BooksWorksheet, "books-worksheet", "", "worksheet holding current-format records")
	flag.StringVar(&flags.LegacyWorksheet, "legacy-worksheet", "", "worksheet holding legacy records")
	flag.IntVar(&flags.Year, "year", 0, "report year (default: current year)")
	flag.StringVar(&flags.Timeout, "timeout", "", "extraction timeout, e.g. 30s")
	flag.BoolVar(&flags.NoColor, "no-color", false, "disable ANSI colors in the report")
	flag.BoolVar(&flags.NoChart, "no-chart", false, "skip the HTML chart page")
	flag.BoolVar(&flags.NoArchive, "no-archive", false, "skip the sqlite archive")
	flag.BoolVar(&flags.NoSnapshots, "no-snapshots", false, "skip the CSV table snapshots")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("reading-report %s\n", version.String())
		return
	}

	log.SetFlags(log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, configPath, flags)
	stop()
	if err != nil {
		reportFailure(err)
		os.Exit(domainerrors.ExitCode(err))
	}
}

func run(ctx context.Context, configPath string, flags config.Flags) error {
	cfg := config.Empty()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	resolved, err := cfg.Resolve(flags)
	if err != nil {
		return err
	}
	monitoring.Logf("Configuration: %s", resolved)

	credsPath, err := sheets.LoadCredentials(fsutil.OSFileSystem{}, resolved.DataDir)
	if err != nil {
		return err
	}

	client, err := sheets.NewClient(ctx, sheets.ClientConfig{
		SpreadsheetID:   resolved.SpreadsheetID,
		CredentialsPath: credsPath,
		BooksWorksheet:  resolved.BooksWorksheet,
		LegacyWorksheet: resolved.LegacyWorksheet,
	})
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Extractor:      client,
		DataDir:        resolved.DataDir,
		Year:           resolved.Year,
		ExtractTimeout: resolved.RequestTimeout,
		Color:          resolved.Color,
		Chart:          resolved.Chart,
		Snapshots:      resolved.Snapshots,
	}

	if resolved.Archive {
		arc, err := archive.Open(resolved.ArchivePath)
		if err != nil {
			return err
		}
		defer arc.Close()
		if err := arc.Migrate(); err != nil {
			return err
		}
		opts.Archiver = arc
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	_, err = p.Run(ctx)
	return err
}

// reportFailure prints one line naming the failed stage before the process
// exits with the error's code.
func reportFailure(err error) {
	switch {
	case domainerrors.Is(err, domainerrors.ErrExtraction):
		monitoring.Logf("Pipeline stopped due to extraction error: %v", err)
	case domainerrors.Is(err, domainerrors.ErrTransform):
		monitoring.Logf("Pipeline stopped due to transformation error: %v", err)
	case domainerrors.Is(err, domainerrors.ErrLoad):
		monitoring.Logf("Pipeline stopped due to loading error: %v", err)
	case domainerrors.Is(err, domainerrors.ErrValidation):
		monitoring.Logf("Pipeline stopped due to invalid parameters: %v", err)
	case domainerrors.Is(err, domainerrors.ErrConfig):
		monitoring.Logf("Pipeline stopped due to configuration error: %v", err)
	default:
		monitoring.Logf("Error: %v", err)
	}
}
