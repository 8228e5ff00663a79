package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", ExtractUpMigration(content))
	assert.Equal(t, "SELECT 1;", ExtractUpMigration("SELECT 1;"))
}

func TestSplitStatements(t *testing.T) {
	body := `
-- leading comment
CREATE TABLE a (id INTEGER);

CREATE INDEX idx_a ON a (id);
   ;
`
	assert.Equal(t, []string{
		"CREATE TABLE a (id INTEGER)",
		"CREATE INDEX idx_a ON a (id)",
	}, SplitStatements(body))
}

func TestApplyMigrationsRecordsEachFileOnce(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;")},
		"m/002_b.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE b (id INTEGER);\nINSERT INTO b (id) VALUES (1);")},
		"m/README.md": {Data: []byte("ignored")},
	}

	require.NoError(t, ApplyMigrations(ctx, db, fsys, "m"))
	// A second run must not re-insert into b.
	require.NoError(t, ApplyMigrations(ctx, db, fsys, "m"))

	var rows int
	require.NoError(t, db.Get(&rows, "SELECT COUNT(*) FROM b"))
	assert.Equal(t, 1, rows)

	var applied []string
	require.NoError(t, db.Select(&applied, "SELECT name FROM schema_migrations ORDER BY name"))
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, applied)
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, Migrate(context.Background(), db))

	for _, table := range []string{"time_slots", "holds", "bookings", "booking_time_slots"} {
		var n int
		err := db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestSlotStateConstraints(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, Migrate(context.Background(), db))

	insert := `INSERT INTO time_slots (id, start_time, end_time, price_cents, status, booking_reference, hold_token, created_at, updated_at)
VALUES (?, '2026-07-01 10:00:00', '2026-07-01 10:30:00', 2500, ?, ?, ?, '2026-06-01 00:00:00', '2026-06-01 00:00:00')`

	_, err := db.Exec(insert, "a", "booked", nil, nil)
	assert.Error(t, err, "booked slot without a reference")

	_, err = db.Exec(insert, "b", "available", nil, "tok")
	assert.Error(t, err, "available slot carrying a hold token")

	_, err = db.Exec(insert, "c", "reserved", nil, "tok")
	assert.NoError(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_time_format=sqlite&_pragma=busy_timeout(5000)", sqliteDSN(":memory:"))
	assert.Equal(t, "file:x.db?mode=rwc&_time_format=sqlite&_pragma=busy_timeout(5000)", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "file:x.db?_time_format=sqlite&_pragma=busy_timeout(1)", sqliteDSN("file:x.db?_time_format=sqlite&_pragma=busy_timeout(1)"))
}
