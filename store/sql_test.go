package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/razeghi71/streamagg/record"
)

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, SQLite, filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace(ctx, "movies", docs()))
	require.NoError(t, s.Replace(ctx, "series", docs()[:1]))
	requireDocs(t, s, "movies")

	// replacing again must not duplicate
	require.NoError(t, s.Replace(ctx, "movies", docs()))
	requireDocs(t, s, "movies")

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"movies", "series"}, names)

	cur, err := s.Fetch(ctx, "unknown")
	require.NoError(t, err)
	got, err := record.Collect(cur)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLiteFloatsStayFloats(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, SQLite, filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace(ctx, "c", docs()))
	cur, err := s.Fetch(ctx, "c")
	require.NoError(t, err)
	got, err := record.Collect(cur)
	require.NoError(t, err)
	require.Equal(t, record.TypeFloat, got[0].Get("rating").Type)
	require.Equal(t, 4.0, got[0].Get("rating").Float)
}

func newMock(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQL(db, Postgres), mock
}

func TestPostgresFetch(t *testing.T) {
	s, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"doc"}).
		AddRow(`{"content_id":"M1","rating":4.0,"genre":["Drama"]}`).
		AddRow(`{"content_id":"M2","rating":2.5,"budget":null}`)
	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectDocs)).WithArgs("movies").WillReturnRows(rows)

	requireDocs(t, s, "movies")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFetchFailure(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectDocs)).WithArgs("movies").
		WillReturnError(errors.New("connection refused"))

	_, err := s.Fetch(context.Background(), "movies")
	var se *SourceError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "movies", se.Source)
	require.ErrorContains(t, err, "connection refused")
}

func TestPostgresCorruptDocument(t *testing.T) {
	s, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"doc"}).AddRow(`{"content_id":"M1"}`).AddRow(`{broken`)
	mock.ExpectQuery(regexp.QuoteMeta(Postgres.SelectDocs)).WithArgs("movies").WillReturnRows(rows)

	cur, err := s.Fetch(context.Background(), "movies")
	require.NoError(t, err)
	_, err = record.Collect(cur)
	require.ErrorContains(t, err, "corrupt document")
}

func TestPostgresCollections(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(Postgres.Collections)).
		WillReturnRows(sqlmock.NewRows([]string{"collection"}).AddRow("movies").AddRow("series"))

	names, err := s.Collections(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"movies", "series"}, names)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplace(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(Postgres.DeleteDocs)).WithArgs("movies").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(Postgres.InsertDoc)).
		WithArgs("movies", int64(0), `{"content_id":"M1","rating":4.0,"genre":["Drama"]}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(Postgres.InsertDoc)).
		WithArgs("movies", int64(1), `{"content_id":"M2","rating":2.5,"budget":null}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Replace(context.Background(), "movies", docs()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReplaceRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(Postgres.DeleteDocs)).WithArgs("movies").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(Postgres.InsertDoc)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Replace(context.Background(), "movies", docs())
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")
	s, err := OpenSQL(ctx, SQLite, path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(ctx, "movies", docs()))
	require.NoError(t, s.Close())

	s, err = OpenSQL(ctx, SQLite, path)
	require.NoError(t, err)
	defer s.Close()
	requireDocs(t, s, "movies")
}
