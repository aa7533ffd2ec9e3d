package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func TestLoadMigrations_SortedSQLOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_wallets.sql"), []byte("SELECT 2;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "seed"), 0o755))

	migrations, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_init.sql", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
	assert.Equal(t, "0002_wallets.sql", migrations[1].Name)
}

func TestApply_SkipsApplied(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_init.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE FUNCTION add_wallet_balance")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (name) VALUES ($1)")).
		WithArgs("0002_wallet_functions.sql").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	err := Apply(context.Background(), conn, []Migration{
		{Name: "0001_init.sql", SQL: "CREATE TABLE users ()"},
		{Name: "0002_wallet_functions.sql", SQL: "CREATE FUNCTION add_wallet_balance()"},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_FailedMigrationRollsBack(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE broken").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := Apply(context.Background(), conn, []Migration{{Name: "0001_init.sql", SQL: "CREATE TABLE broken"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations_InvoiceNumberScopedToFreelancer(t *testing.T) {
	migrations, err := LoadMigrations("../../migrations")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	var schema strings.Builder
	for _, m := range migrations {
		schema.WriteString(m.SQL)
		schema.WriteString("\n")
	}
	sql := schema.String()

	assert.NotRegexp(t, `number\s+TEXT\s+NOT\s+NULL\s+UNIQUE`, sql, "номер счёта не должен быть уникален глобально")
	assert.Contains(t, sql, "DROP CONSTRAINT IF EXISTS invoices_number_key")
	assert.Regexp(t, `UNIQUE INDEX IF NOT EXISTS \w+\s+ON invoices\(freelancer_id, number\)`, sql)
	assert.Contains(t, sql, "PRIMARY KEY (freelancer_id, year)")
}
