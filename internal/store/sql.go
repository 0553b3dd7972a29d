package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore keeps artifacts in a SQLite-compatible database. The caller picks
// the driver; the binary registers exactly one (libsql, sqlite3 or sqlite).
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens dsn with driver, applies connection pragmas and runs
// pending migrations.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	s, err := NewSQLStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database. Migrate must run before first use.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil database")
	}
	db.SetMaxOpenConns(1)

	// Some pragmas return a row, so they go through QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}
	return &SQLStore{db: db}, nil
}

// DB exposes the underlying handle for maintenance jobs.
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Close() error { return s.db.Close() }

// Migrate applies the embedded migrations not yet recorded.
func (s *SQLStore) Migrate(ctx context.Context) error {
	steps, err := loadMigrations(migrationFS)
	if err != nil {
		return err
	}
	return migrate(ctx, s.db, steps)
}

// Vacuum reclaims space after Clear or Prune.
func (s *SQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *SQLStore) Get(ctx context.Context, fp string) ([]byte, error) {
	if err := checkFingerprint(fp); err != nil {
		return nil, err
	}
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM artifacts WHERE fingerprint = ?`, fp).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, artifactNotFound(fp)
	}
	if err != nil {
		return nil, cacheIO("read", fp, err)
	}
	// accessed_at drives Prune; a failed touch still returns the artifact.
	_, _ = s.db.ExecContext(ctx, `UPDATE artifacts SET accessed_at = ? WHERE fingerprint = ?`, time.Now().UnixNano(), fp)
	return body, nil
}

func (s *SQLStore) Put(ctx context.Context, fp string, data []byte) error {
	if err := checkFingerprint(fp); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (fingerprint, body, size, accessed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET body=excluded.body, size=excluded.size, accessed_at=excluded.accessed_at`,
		fp, data, len(data), time.Now().UnixNano(),
	)
	if err != nil {
		return cacheIO("write", fp, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, fp string) error {
	if err := checkFingerprint(fp); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE fingerprint = ?`, fp)
	if err != nil {
		return cacheIO("delete", fp, err)
	}
	return checkRowsAffected(res, fp)
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	return nil
}

// Count returns the number of stored artifacts and their total size in bytes.
func (s *SQLStore) Count(ctx context.Context) (int, int64, error) {
	var n int
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(size) FROM artifacts`).Scan(&n, &size)
	if err != nil {
		return 0, 0, fmt.Errorf("count artifacts: %w", err)
	}
	return n, size.Int64, nil
}

// Prune deletes artifacts not read or written since before cutoff.
func (s *SQLStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE accessed_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune artifacts: %w", err)
	}
	return res.RowsAffected()
}

func checkRowsAffected(res sql.Result, fp string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return artifactNotFound(fp)
	}
	return nil
}
