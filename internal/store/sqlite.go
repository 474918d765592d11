package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the default backend, applying migrations m001-m003 as
// described in SPEC_FULL §6: m001 creates relays, m002 creates config with a
// single JSON column, m003 adds an extra column copied from that column and
// adds owner_id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the SQLite database at path and
// applies any pending migrations. A failure to open is fatal at startup per
// SPEC_FULL §3's Store lifecycle note.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping sqlite %s: %w", path, err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		// m001_initial
		`CREATE TABLE IF NOT EXISTS relays (
			id TEXT NOT NULL PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			active BOOLEAN DEFAULT true
		)`,
		// m002_config
		`CREATE TABLE IF NOT EXISTS config (
			json_data TEXT NOT NULL DEFAULT '{}'
		)`,
	}
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	if err := s.migrateM003(); err != nil {
		return err
	}
	return nil
}

// migrateM003 adds config.extra, backfilled from config.json_data, and adds
// owner_id, matching SPEC_FULL §6's m003. json_data is not dropped; SaveConfig
// keeps writing it alongside extra. SQLite's ALTER TABLE can't conditionally add
// a column, so this checks pragma_table_info first (idempotent across
// restarts, same as the original migrations framework's version tracking).
func (s *SQLiteStore) migrateM003() error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('config')`)
	if err != nil {
		return fmt.Errorf("store: inspect config table: %w", err)
	}
	defer rows.Close()

	hasExtra, hasOwnerID := false, false
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		switch name {
		case "extra":
			hasExtra = true
		case "owner_id":
			hasOwnerID = true
		}
	}

	if !hasExtra {
		if _, err := s.db.Exec(`ALTER TABLE config ADD COLUMN extra TEXT`); err != nil {
			return fmt.Errorf("store: add extra column: %w", err)
		}
		if _, err := s.db.Exec(`UPDATE config SET extra = json_data WHERE extra IS NULL`); err != nil {
			return fmt.Errorf("store: backfill extra column: %w", err)
		}
	}
	if !hasOwnerID {
		if _, err := s.db.Exec(`ALTER TABLE config ADD COLUMN owner_id TEXT DEFAULT '` + DefaultOwnerID + `'`); err != nil {
			return fmt.Errorf("store: add owner_id column: %w", err)
		}
	}
	if _, err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_config_owner_id ON config(owner_id)`); err != nil {
		return fmt.Errorf("store: index owner_id: %w", err)
	}
	return nil
}

// LoadRelays returns every persisted relay.
func (s *SQLiteStore) LoadRelays(ctx context.Context) ([]Relay, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, active FROM relays`)
	if err != nil {
		return nil, fmt.Errorf("store: load relays: %w", err)
	}
	defer rows.Close()

	var out []Relay
	for rows.Next() {
		var r Relay
		if err := rows.Scan(&r.ID, &r.URL, &r.Active); err != nil {
			return nil, fmt.Errorf("store: scan relay: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRelay inserts or replaces a relay row, keyed by id.
func (s *SQLiteStore) SaveRelay(ctx context.Context, r Relay) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relays (id, url, active) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET url = excluded.url, active = excluded.active`,
		r.ID, r.URL, r.Active)
	if err != nil {
		return fmt.Errorf("store: save relay: %w", err)
	}
	return nil
}

// DeleteRelay removes a relay by url.
func (s *SQLiteStore) DeleteRelay(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM relays WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("store: delete relay: %w", err)
	}
	return nil
}

// LoadConfig returns the persisted config for ownerID, creating a default
// (zero-value, owned by ownerID) row if none exists yet.
func (s *SQLiteStore) LoadConfig(ctx context.Context, ownerID string) (Config, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner_id, extra FROM config WHERE owner_id = ?`, ownerID)

	var got string
	var extra sql.NullString
	err := row.Scan(&got, &extra)
	if err == sql.ErrNoRows {
		cfg := Config{OwnerID: ownerID}
		if saveErr := s.SaveConfig(ctx, cfg); saveErr != nil {
			return Config{}, saveErr
		}
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("store: load config: %w", err)
	}

	cfg := Config{OwnerID: got}
	if extra.Valid {
		if err := decodeConfigExtra(extra.String, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// SaveConfig upserts the config row for c.OwnerID.
func (s *SQLiteStore) SaveConfig(ctx context.Context, c Config) error {
	extra, err := encodeConfigExtra(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO config (owner_id, extra, json_data) VALUES (?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET extra = excluded.extra`,
		c.OwnerID, extra, extra)
	if err != nil {
		return fmt.Errorf("store: save config: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
