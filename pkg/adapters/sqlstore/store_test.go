package sqlstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aretw0/labflow/pkg/adapters/sqlstore"
	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "labflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunStateStoreContract(t, openSQLite(t))
}

func TestSQLiteStore_ReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labflow.db")

	store, err := sqlstore.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	require.NoError(t, store.SetState(ctx, "WS-1", domain.AxisReview, "to_be_verified", domain.HistoryEntry{
		Transition: "submit", Axis: domain.AxisReview, From: "open", To: "to_be_verified",
	}))
	require.NoError(t, store.Close())

	store, err = sqlstore.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	state, err := store.GetState(ctx, "WS-1", domain.AxisReview)
	require.NoError(t, err)
	assert.Equal(t, domain.StateID("to_be_verified"), state)

	history, err := store.History(ctx, "WS-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Timestamp.IsZero(), "zero timestamps survive the round trip")
}

func TestDialectFor(t *testing.T) {
	d, err := sqlstore.DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, sqlstore.Postgres, d)

	d, err = sqlstore.DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, sqlstore.SQLite, d)

	_, err = sqlstore.DialectFor("mysql")
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func TestSetState_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := sqlstore.NewFromDB(db, sqlstore.Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO states .* VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs("AN-1", "review", "to_be_verified", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO history`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err = store.SetState(context.Background(), "AN-1", domain.AxisReview, "to_be_verified", domain.HistoryEntry{
		Transition: "submit", Axis: domain.AxisReview, To: "to_be_verified",
	})
	assert.ErrorContains(t, err, "commit state of AN-1")
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetState_RollsBackOnHistoryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := sqlstore.NewFromDB(db, sqlstore.SQLite)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO states`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO history`).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = store.SetState(context.Background(), "AN-1", domain.AxisReview, "x", domain.HistoryEntry{})
	assert.ErrorContains(t, err, "insert history")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetState_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT state FROM states`).WillReturnError(errors.New("connection reset"))

	_, err = sqlstore.NewFromDB(db, sqlstore.SQLite).GetState(context.Background(), "AN-1", domain.AxisReview)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStateNotFound)
}
