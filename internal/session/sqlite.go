package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/guest-assistant/internal/logger"
)

// SQLiteStore persists the slots of one tab in a SQLite file, so a client
// restarted with the same tab id resumes its session.
type SQLiteStore struct {
	db    *sql.DB
	tabID string
	now   func() time.Time
}

// OpenSQLite opens (creating when needed) the database at path and scopes the
// returned store to tabID.
func OpenSQLite(path, tabID string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("session: sqlite path must not be empty")
	}
	if strings.TrimSpace(tabID) == "" {
		return nil, errors.New("session: tab id must not be empty")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tab_slots (
		tab_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (tab_id, key)
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: create tab_slots: %w", err)
	}
	logger.L.Info("sqlite session DB initialized", "path", path, "tab_id", tabID)
	return &SQLiteStore{db: db, tabID: tabID, now: time.Now}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, bookingNumber string, welcome *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	const upsert = `INSERT INTO tab_slots (tab_id, key, value, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(tab_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	if _, err := tx.ExecContext(ctx, upsert, s.tabID, KeyBookingNumber, bookingNumber, now); err != nil {
		return fmt.Errorf("session: save booking number: %w", err)
	}
	if welcome != nil {
		_, err = tx.ExecContext(ctx, upsert, s.tabID, KeyWelcome, *welcome, now)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM tab_slots WHERE tab_id = ? AND key = ?;`, s.tabID, KeyWelcome)
	}
	if err != nil {
		return fmt.Errorf("session: save welcome: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) BookingNumber(ctx context.Context) (string, bool, error) {
	return s.get(ctx, KeyBookingNumber)
}

func (s *SQLiteStore) Welcome(ctx context.Context) (string, bool, error) {
	return s.get(ctx, KeyWelcome)
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM tab_slots WHERE tab_id = ? AND key = ?;`, s.tabID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: read %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tab_slots WHERE tab_id = ?;`, s.tabID); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
