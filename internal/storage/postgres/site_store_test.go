package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitegen/internal/site"
)

var columns = []string{"id", "title", "prompt", "html_stored_at", "screenshot_stored_at", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*SiteStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewSiteStoreWithPool(mock, "sites")
	require.NoError(t, err)
	return store, mock
}

func TestNewSiteStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSiteStoreWithPool(nil, "sites")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewSiteStoreWithPool(mock, "sites; DROP TABLE x")
	require.Error(t, err)
}

func TestCreateReturnsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO sites").
		WithArgs("Dominoes", "domino fan club").
		WillReturnRows(mock.NewRows(columns).AddRow(int64(7), "Dominoes", "domino fan club", nil, nil, now, now))

	rec, err := store.Create(context.Background(), "Dominoes", "domino fan club")
	require.NoError(t, err)
	require.Equal(t, int64(7), rec.ID)
	require.Equal(t, "Dominoes", rec.Title)
	require.False(t, rec.HasHTML())
	require.Equal(t, now, rec.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM sites WHERE id").
		WithArgs(int64(3)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), 3)
	require.True(t, errors.Is(err, site.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetScansTimestamps(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	stored := now.Add(time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM sites WHERE id").
		WithArgs(int64(4)).
		WillReturnRows(mock.NewRows(columns).AddRow(int64(4), "Bakery", "a bakery", stored, nil, now, stored))

	rec, err := store.Get(context.Background(), 4)
	require.NoError(t, err)
	require.True(t, rec.HasHTML())
	require.Equal(t, stored, *rec.HTMLStoredAt)
	require.False(t, rec.HasScreenshot())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT (.+) FROM sites ORDER BY id").
		WillReturnRows(mock.NewRows(columns).
			AddRow(int64(1), "a", "p1", nil, nil, now, now).
			AddRow(int64(2), "b", "p2", now, now, now, now))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[1].HasScreenshot())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkHTMLStored(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000100, 0).UTC()

	mock.ExpectExec("UPDATE sites").
		WithArgs(int64(42), at, "Test Page").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkHTMLStored(context.Background(), 42, "Test Page", at))

	mock.ExpectExec("UPDATE sites").
		WithArgs(int64(43), at, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := store.MarkHTMLStored(context.Background(), 43, "", at)
	require.True(t, errors.Is(err, site.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkScreenshotStored(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000200, 0).UTC()

	mock.ExpectExec("UPDATE sites").
		WithArgs(int64(42), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkScreenshotStored(context.Background(), 42, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sites").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewSiteStoreWithPool(mock, "sites")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	err = store.Ping(context.Background())
	require.ErrorContains(t, err, "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
