package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stemsi/exstem-proctor/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLite persists drafts in a local SQLite file. Every Save is a committed
// write so a killed process loses at most the edit in flight.
type SQLite struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the store at path and applies embedded migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

func applyMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	// m.Close would close sqlDB through the driver, so only the source is released.
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLite) Save(ctx context.Context, attemptID string, snap Snapshot) error {
	if attemptID == "" {
		return fmt.Errorf("attempt id is required")
	}
	answers := snap.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO attempt_drafts (attempt_id, answers, current_question_index, saved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET answers = excluded.answers,
		     current_question_index = excluded.current_question_index,
		     saved_at = excluded.saved_at`,
		attemptID, string(raw), snap.CurrentQuestionIndex, savedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, attemptID string) (Snapshot, error) {
	var (
		raw     string
		index   int
		savedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT answers, current_question_index, saved_at
		 FROM attempt_drafts
		 WHERE attempt_id = ?`, attemptID,
	).Scan(&raw, &index, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load draft: %w", err)
	}

	snap := Snapshot{
		CurrentQuestionIndex: index,
		SavedAt:              time.UnixMilli(savedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(raw), &snap.Answers); err != nil {
		return Snapshot{}, fmt.Errorf("decode draft: %w", err)
	}
	if snap.Answers == nil {
		snap.Answers = map[string]string{}
	}
	return snap, nil
}

func (s *SQLite) Clear(ctx context.Context, attemptID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM attempt_drafts WHERE attempt_id = ?`, attemptID); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
