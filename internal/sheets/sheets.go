// Package sheets extracts the source tables from a Google Sheets document
// using a service account. The document holds two worksheets: "books" with
// the current record format and "consolidate" with the legacy one.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
	"github.com/banshee-data/reading.report/internal/monitoring"
)

const (
	// BooksWorksheet holds records in the current format.
	BooksWorksheet = "books"

	// LegacyWorksheet holds records in the retired format, kept for totals.
	LegacyWorksheet = "consolidate"

	// CredsEnvVar carries the service account key as base64 JSON.
	CredsEnvVar = "READING_REPORT_CREDS_B64"

	// CredsFileName is where the decoded key is written.
	CredsFileName = "reading_report_creds.json"
)

// LoadCredentials resolves the service account key file under dir. An
// existing key file wins; otherwise the base64 environment variable is
// decoded and written beside the data files.
func LoadCredentials(fs fsutil.FileSystem, dir string) (string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	path := filepath.Join(dir, CredsFileName)
	if fs.Exists(path) {
		return path, nil
	}

	encoded := os.Getenv(CredsEnvVar)
	if encoded == "" {
		return "", domainerrors.Configf("missing %s environment variable and no %s file", CredsEnvVar, CredsFileName)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", domainerrors.Wrapf(err, domainerrors.CodeConfig, "decoding %s", CredsEnvVar)
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeConfig, "creating credentials directory")
	}
	if err := fs.WriteFile(path, decoded, 0600); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeConfig, "writing credentials file")
	}

	return path, nil
}

// ClientConfig configures a Client. Empty worksheet names fall back to the
// package defaults.
type ClientConfig struct {
	SpreadsheetID   string
	CredentialsPath string
	BooksWorksheet  string
	LegacyWorksheet string
}

// Client reads worksheets from one spreadsheet.
type Client struct {
	svc             *gsheets.Service
	spreadsheetID   string
	booksWorksheet  string
	legacyWorksheet string
}

// NewClient authenticates with the service account key and binds to the
// configured spreadsheet.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, domainerrors.Config("spreadsheet ID must not be empty")
	}
	if cfg.BooksWorksheet == "" {
		cfg.BooksWorksheet = BooksWorksheet
	}
	if cfg.LegacyWorksheet == "" {
		cfg.LegacyWorksheet = LegacyWorksheet
	}

	key, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeExtraction, "reading service account key")
	}

	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsJSON(key),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeExtraction, "authenticating with Google Sheets")
	}

	return &Client{
		svc:             svc,
		spreadsheetID:   cfg.SpreadsheetID,
		booksWorksheet:  cfg.BooksWorksheet,
		legacyWorksheet: cfg.LegacyWorksheet,
	}, nil
}

// Tables fetches both worksheets.
func (c *Client) Tables(ctx context.Context) (rawBooks, rawLegacy books.Table, err error) {
	rawBooks, err = c.worksheet(ctx, c.booksWorksheet)
	if err != nil {
		return books.Table{}, books.Table{}, err
	}

	rawLegacy, err = c.worksheet(ctx, c.legacyWorksheet)
	if err != nil {
		return books.Table{}, books.Table{}, err
	}

	monitoring.Logf("Data successfully extracted.")
	return rawBooks, rawLegacy, nil
}

func (c *Client) worksheet(ctx context.Context, name string) (books.Table, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, name).Context(ctx).Do()
	if err != nil {
		return books.Table{}, domainerrors.Wrapf(err, domainerrors.CodeExtraction, "reading worksheet %q", name)
	}

	if len(resp.Values) == 0 {
		return books.Table{}, domainerrors.Extractionf("worksheet %q is empty", name)
	}

	return tableFromValues(resp.Values), nil
}

// tableFromValues converts the API cell grid into a Table. The API omits
// trailing empty cells, so short rows are padded to the header width.
func tableFromValues(values [][]interface{}) books.Table {
	t := books.Table{Header: make([]string, 0, len(values[0]))}
	for _, cell := range values[0] {
		t.Header = append(t.Header, cellString(cell))
	}

	for _, row := range values[1:] {
		cells := make([]string, 0, len(t.Header))
		for _, cell := range row {
			cells = append(cells, cellString(cell))
		}
		for len(cells) < len(t.Header) {
			cells = append(cells, "")
		}
		t.Rows = append(t.Rows, cells)
	}

	return t
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
