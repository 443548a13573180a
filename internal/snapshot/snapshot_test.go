package snapshot

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dp(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func sampleBooks() []books.Book {
	return []books.Book{
		{
			Name:        "Hyperion",
			Author:      "Dan Simmons",
			Status:      books.StatusCompleted,
			StartDate:   date(2025, 1, 1),
			EndDate:     dp(2025, 1, 11),
			TotalPages:  482,
			Score:       fp(9.5),
			Year:        2025,
			Days:        ip(10),
			PagesPerDay: fp(48.2),
		},
		{
			Name:       "Dune",
			Author:     "Frank Herbert",
			Status:     books.StatusOngoing,
			StartDate:  date(2025, 2, 1),
			TotalPages: 412,
			Year:       2025,
		},
		{
			Name:       "Ulysses",
			Author:     "James Joyce",
			Status:     books.StatusDropped,
			StartDate:  date(2024, 6, 1),
			TotalPages: 730,
			Score:      fp(4),
			Year:       2024,
		},
	}
}

func TestWriteRaw_PersistsVerbatim(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := New(fs)

	rawBooks := books.Table{
		Header: []string{"book_name", "author"},
		Rows:   [][]string{{"Hyperion", "Dan Simmons"}, {"Dune", "Frank Herbert"}},
	}
	rawLegacy := books.Table{
		Header: []string{"book_name"},
		Rows:   [][]string{{"Solaris"}},
	}

	require.NoError(t, store.WriteRaw("data", rawBooks, rawLegacy))

	got, err := fs.ReadFile("data/" + RawBooksFile)
	require.NoError(t, err)
	assert.Equal(t, "book_name,author\nHyperion,Dan Simmons\nDune,Frank Herbert\n", string(got))

	got, err = fs.ReadFile("data/" + RawLegacyFile)
	require.NoError(t, err)
	assert.Equal(t, "book_name\nSolaris\n", string(got))
}

func TestWriteNormalized_RoundTrip(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := New(fs)
	want := sampleBooks()

	require.NoError(t, store.WriteNormalized("data", want))

	got, err := store.ReadNormalized("data")
	require.NoError(t, err)

	require.Len(t, got, len(want))
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	wantStatuses := map[books.Status]int{}
	gotStatuses := map[books.Status]int{}
	for i := range want {
		wantStatuses[want[i].Status]++
		gotStatuses[got[i].Status]++
	}
	assert.Equal(t, wantStatuses, gotStatuses)
}

func TestWriteNormalized_Overwrites(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := New(fs)

	require.NoError(t, store.WriteNormalized("data", sampleBooks()))
	require.NoError(t, store.WriteNormalized("data", sampleBooks()[:1]))

	got, err := store.ReadNormalized("data")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hyperion", got[0].Name)
}

func TestWriteNormalized_EmptySlice(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := New(fs)

	require.NoError(t, store.WriteNormalized("data", nil))

	got, err := store.ReadNormalized("data")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadNormalized_MissingFile(t *testing.T) {
	store := New(fsutil.NewMemoryFileSystem())

	_, err := store.ReadNormalized("data")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrLoad)
}

func TestReadNormalized_RejectsForeignHeader(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("data/"+NormalizedFile, []byte("a,b,c\n1,2,3\n"), 0644))

	_, err := New(fs).ReadNormalized("data")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrLoad)
	assert.Contains(t, err.Error(), "unexpected snapshot header")
}

func TestReadNormalized_CorruptRow(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	store := New(fs)

	require.NoError(t, store.WriteNormalized("data", sampleBooks()[:1]))

	data, err := fs.ReadFile("data/" + NormalizedFile)
	require.NoError(t, err)
	corrupted := append(data, []byte("Solaris,Lem,Completed,not-a-date,,200,,2024,,\n")...)
	require.NoError(t, fs.WriteFile("data/"+NormalizedFile, corrupted, 0644))

	_, err = store.ReadNormalized("data")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrLoad)
	assert.Contains(t, err.Error(), "snapshot row 2")
}
