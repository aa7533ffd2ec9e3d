package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// migrationLockKey ключ pg_advisory_lock: несколько реплик не применяют миграции одновременно.
const migrationLockKey = 72_410_001

// NewPostgres создаёт подключение к PostgreSQL и настраивает пул.
func NewPostgres(ctx context.Context, dsn string, pool config.PoolConfig) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось подключиться: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	return conn, nil
}

// Migration SQL файл миграции.
type Migration struct {
	Name string
	SQL  string
}

// LoadMigrations читает *.sql из каталога в лексикографическом порядке.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("postgres: не удалось прочитать каталог миграций: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("postgres: не удалось прочитать миграцию %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, SQL: string(raw)})
	}
	return out, nil
}

// RunMigrations применяет миграции из каталога.
func RunMigrations(ctx context.Context, conn *sqlx.DB, migrationsDir string) error {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	return Apply(ctx, conn, migrations)
}

// Apply применяет ещё не выполненные миграции, каждую в своей транзакции.
func Apply(ctx context.Context, conn *sqlx.DB, migrations []Migration) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("postgres: не удалось инициализировать таблицу миграций: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("postgres: не удалось взять блокировку миграций: %w", err)
	}
	defer func() {
		// контекст мог быть отменён, блокировку всё равно отпускаем
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			logger.Log.WithError(err).Warn("postgres: не удалось отпустить блокировку миграций")
		}
	}()

	var applied []string
	if err := conn.SelectContext(ctx, &applied, `SELECT name FROM schema_migrations`); err != nil {
		return fmt.Errorf("postgres: не удалось получить список миграций: %w", err)
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	log := logger.Component("migrations")
	for _, m := range migrations {
		if _, ok := done[m.Name]; ok {
			continue
		}
		if err := applyOne(ctx, conn, m); err != nil {
			return err
		}
		log.WithField("name", m.Name).Info("миграция применена")
	}
	return nil
}

func applyOne(ctx context.Context, conn *sqlx.DB, m Migration) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: не удалось начать транзакцию для миграции %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("postgres: не удалось выполнить миграцию %s: %w", m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
		return fmt.Errorf("postgres: не удалось отметить миграцию %s: %w", m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: не удалось зафиксировать миграцию %s: %w", m.Name, err)
	}
	return nil
}
