package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"agentverse/internal/domain"
)

// SQLiteStore implements domain.SettingsStore on a key/value table.
type SQLiteStore struct {
	db       *sql.DB
	defaults domain.GenerationSettings
}

var _ domain.SettingsStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
//
// Transactions start IMMEDIATE so a read-modify-write Update takes the write
// lock up front and waits on busy_timeout instead of failing its upgrade.
// Pragmas ride on the DSN so every pooled connection gets them.
func NewSQLiteStore(dbPath string, defaults domain.GenerationSettings) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate settings db: %w", err)
	}
	return &SQLiteStore{db: db, defaults: defaults}, nil
}

func sqliteDSN(path string) string {
	v := url.Values{}
	v.Set("_txlock", "immediate")
	v.Add("_pragma", "busy_timeout(5000)")
	v.Add("_pragma", "journal_mode(WAL)")
	return path + "?" + v.Encode()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) Load(ctx context.Context) (domain.GenerationSettings, error) {
	return s.load(ctx, s.db)
}

func (s *SQLiteStore) load(ctx context.Context, q querier) (domain.GenerationSettings, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", domain.SettingsStorageKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaults, nil
	}
	if err != nil {
		return s.defaults, domain.NewDomainError("settings.Load", domain.ErrSettingsStore, err.Error())
	}
	settings, err := decode(value, s.defaults)
	if err != nil {
		return s.defaults, domain.NewDomainError("settings.Load", domain.ErrSettingsStore, err.Error())
	}
	return settings, nil
}

func (s *SQLiteStore) Save(ctx context.Context, settings domain.GenerationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.save(ctx, s.db, settings)
}

func (s *SQLiteStore) save(ctx context.Context, q querier, settings domain.GenerationSettings) error {
	value, err := encode(settings)
	if err != nil {
		return domain.NewDomainError("settings.Save", domain.ErrSettingsStore, err.Error())
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		domain.SettingsStorageKey, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("settings.Save", domain.ErrSettingsStore, err.Error())
	}
	return nil
}

// Update merges patch into the stored settings inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, patch domain.SettingsPatch) (domain.GenerationSettings, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.defaults, domain.NewDomainError("settings.Update", domain.ErrSettingsStore, err.Error())
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := s.load(ctx, tx)
	if err != nil {
		return current, err
	}
	merged := current.Merge(patch)
	if err := merged.Validate(); err != nil {
		return current, err
	}
	if err := s.save(ctx, tx, merged); err != nil {
		return current, err
	}
	if err := tx.Commit(); err != nil {
		return current, domain.NewDomainError("settings.Update", domain.ErrSettingsStore, err.Error())
	}
	return merged, nil
}
