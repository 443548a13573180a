package ledger

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
)

// failingFS lets tests inject I/O failures on the append path.
type failingFS struct {
	fsutil.FileSystem
	appendErr error
}

func (f *failingFS) OpenAppend(name string) (io.WriteCloser, error) {
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	return f.FileSystem.OpenAppend(name)
}

func TestAppendIfChanged_FirstUse(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	appended, err := l.AppendIfChanged("/data", ts, 10)
	require.NoError(t, err)
	assert.True(t, appended)

	raw, err := mfs.ReadFile("/data/" + FileName)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,records_current", lines[0])
	assert.Equal(t, ts.Format(time.RFC3339Nano)+",10", lines[1])
}

func TestAppendIfChanged_SameCountIsNoOp(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	appended, err := l.AppendIfChanged("/data", ts, 10)
	require.NoError(t, err)
	require.True(t, appended)

	appended, err = l.AppendIfChanged("/data", ts.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.False(t, appended)

	entries, err := l.History("/data")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendIfChanged_ChangedCountAppends(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := l.AppendIfChanged("/data", ts, 10)
	require.NoError(t, err)

	appended, err := l.AppendIfChanged("/data", ts.Add(time.Hour), 13)
	require.NoError(t, err)
	assert.True(t, appended)

	entries, err := l.History("/data")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 10, entries[0].RecordCount)
	assert.Equal(t, 13, entries[1].RecordCount)
}

func TestAppendIfChanged_NoConsecutiveDuplicates(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	// Shrinking counts are accepted; only adjacent duplicates are dropped.
	counts := []int{10, 10, 13, 13, 10}
	for i, c := range counts {
		_, err := l.AppendIfChanged("/data", ts.Add(time.Duration(i)*time.Hour), c)
		require.NoError(t, err)
	}

	entries, err := l.History("/data")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i := 1; i < len(entries); i++ {
		assert.NotEqual(t, entries[i-1].RecordCount, entries[i].RecordCount,
			"consecutive entries %d and %d share a count", i-1, i)
	}
	assert.Equal(t, []int{10, 13, 10}, []int{
		entries[0].RecordCount, entries[1].RecordCount, entries[2].RecordCount,
	})
}

func TestAppendIfChanged_NegativeCountRejectedBeforeIO(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)

	_, err := l.AppendIfChanged("/data", time.Now(), -1)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.False(t, mfs.Exists("/data/"+FileName), "ledger file must not be created")
}

func TestAppendIfChanged_TimestampRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 30, 15, 123456789, time.UTC)

	_, err := l.AppendIfChanged("/data", ts, 7)
	require.NoError(t, err)

	entries, err := l.History("/data")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Timestamp.Equal(ts))
}

func TestAppendIfChanged_AppendFailureIsLoadError(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l := New(mfs)
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	_, err := l.AppendIfChanged("/data", ts, 5)
	require.NoError(t, err)

	broken := New(&failingFS{FileSystem: mfs, appendErr: fmt.Errorf("disk full")})
	_, err = broken.AppendIfChanged("/data", ts.Add(time.Hour), 6)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrLoad))
}

func TestHistory_MissingFile(t *testing.T) {
	l := New(fsutil.NewMemoryFileSystem())

	_, err := l.History("/data")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrLoad))
}

func TestHistory_CorruptRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad header", "time,count\n"},
		{"bad timestamp", "date,records_current\nnot-a-time,10\n"},
		{"bad count", "date,records_current\n2026-02-01T09:00:00Z,ten\n"},
		{"negative count", "date,records_current\n2026-02-01T09:00:00Z,-3\n"},
		{"ragged row", "date,records_current\n2026-02-01T09:00:00Z,10,extra\n"},
		{"empty file", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			require.NoError(t, mfs.WriteFile("/data/"+FileName, []byte(tt.content), 0644))

			_, err := New(mfs).History("/data")
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrLoad))
		})
	}
}

func TestHistory_EmptyLedger(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/data/"+FileName, []byte("date,records_current\n"), 0644))

	entries, err := New(mfs).History("/data")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
