package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tributeboard/internal/model"
)

// Store is the authoritative board ledger backed by SQLite. Unlike the
// client-side reconciler it keeps per-signature tribute rows, so
// upserts deduplicate exactly and totals are derived, never guessed.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and initializes the schema
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS participants (
			address TEXT PRIMARY KEY,
			name TEXT,
			link TEXT,
			annotation TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tributes (
			signature TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			asset TEXT NOT NULL,
			amount REAL NOT NULL,
			usd_value REAL NOT NULL,
			annotation TEXT,
			referrer TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (address) REFERENCES participants(address)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tributes_address ON tributes(address)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query: %w\nQuery: %s", err, query)
		}
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertAfterPayment records one confirmed tribute. The signature is
// the primary key, so replaying the same confirmation is a no-op and
// totals never double-count.
func (s *Store) UpsertAfterPayment(ctx context.Context, up model.LedgerUpsert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO participants (address, name, link, annotation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE participants.name END,
			link = CASE WHEN excluded.link != '' THEN excluded.link ELSE participants.link END,
			annotation = CASE WHEN excluded.annotation != '' THEN excluded.annotation ELSE participants.annotation END`,
		up.Payer, up.Name, annotationURL(up.Annotation), annotationMessage(up.Annotation))
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}

	var referrer, message string
	if up.Annotation != nil {
		referrer = up.Annotation.Referrer
		message = up.Annotation.Message
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO tributes (signature, address, asset, amount, usd_value, annotation, referrer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		up.Signature, up.Payer, up.Asset, up.Amount, up.USDValue, message, referrer, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert tribute: %w", err)
	}

	return tx.Commit()
}

const entryQuery = `
	SELECT t.address,
	       COALESCE(p.name, ''),
	       COALESCE(p.link, ''),
	       COALESCE(p.annotation, ''),
	       SUM(t.usd_value),
	       COUNT(*),
	       MIN(t.created_at),
	       MAX(t.created_at)
	FROM tributes t
	LEFT JOIN participants p ON p.address = t.address`

// GetEntry returns the board row for one participant, or nil when the
// participant has no recorded tributes
func (s *Store) GetEntry(ctx context.Context, identity string) (*model.LeaderboardEntry, error) {
	row := s.db.QueryRowContext(ctx, entryQuery+` WHERE t.address = ? GROUP BY t.address`, identity)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board entry: %w", err)
	}
	return entry, nil
}

// GetEntries returns up to limit board rows, highest totals first
func (s *Store) GetEntries(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, entryQuery+`
		GROUP BY t.address
		ORDER BY SUM(t.usd_value) DESC, MIN(t.created_at) ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get board entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating board entries: %w", err)
	}

	return entries, nil
}

// HasSignature reports whether a tribute with this signature is known
func (s *Store) HasSignature(ctx context.Context, signature string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tributes WHERE signature = ?", signature).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteParticipant removes a participant and their tributes (admin)
func (s *Store) DeleteParticipant(ctx context.Context, address string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tributes WHERE address = ?", address); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM participants WHERE address = ?", address); err != nil {
		return err
	}

	return tx.Commit()
}

// DB returns the underlying database connection
func (s *Store) DB() *sql.DB {
	return s.db
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scannable) (*model.LeaderboardEntry, error) {
	var entry model.LeaderboardEntry
	var first, last int64

	err := row.Scan(&entry.Address, &entry.Name, &entry.Link, &entry.Annotation,
		&entry.TotalUSD, &entry.Count, &first, &last)
	if err != nil {
		return nil, err
	}

	entry.FirstTributeAt = time.Unix(first, 0)
	entry.LastTributeAt = time.Unix(last, 0)
	return &entry, nil
}

func annotationURL(a *model.Annotation) string {
	if a == nil {
		return ""
	}
	return a.URL
}

func annotationMessage(a *model.Annotation) string {
	if a == nil {
		return ""
	}
	return a.Message
}
