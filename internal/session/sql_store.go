package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// SQLStore persists sessions in SQLite or MySQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	// WAL allows readers during the shutdown flush; busy_timeout covers a second process.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	return newSQLStore(ctx, "sqlite", dsn)
}

// NewMySQLStore connects to MySQL using a go-sql-driver DSN.
func NewMySQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql dsn must not be empty")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return newSQLStore(ctx, "mysql", cfg.FormatDSN())
}

func newSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	// MEDIUMTEXT is a valid type name for SQLite too (TEXT affinity).
	const schema = `CREATE TABLE IF NOT EXISTS chat_sessions (
		id           VARCHAR(255) PRIMARY KEY,
		model        VARCHAR(255) NOT NULL DEFAULT '',
		messages     MEDIUMTEXT NOT NULL,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		usage_tokens INTEGER NOT NULL DEFAULT 0,
		created_at   BIGINT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveAll implements Store. The table is replaced in one transaction.
func (s *SQLStore) SaveAll(ctx context.Context, sessions []Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions`); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_sessions
		(id, model, messages, total_tokens, usage_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		msgs, err := json.Marshal(sess.Messages)
		if err != nil {
			return fmt.Errorf("failed to marshal messages for %s: %w", sess.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, sess.ID, sess.Model, string(msgs),
			sess.TotalTokens, sess.UsageTokens, sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sessions: %w", err)
	}
	return nil
}

// LoadAll implements Store.
func (s *SQLStore) LoadAll(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, model, messages, total_tokens, usage_tokens, created_at, updated_at
		FROM chat_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess               Session
			msgs               string
			created, updated int64
		)
		if err := rows.Scan(&sess.ID, &sess.Model, &msgs, &sess.TotalTokens, &sess.UsageTokens, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := json.Unmarshal([]byte(msgs), &sess.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages for %s: %w", sess.ID, err)
		}
		sess.CreatedAt = time.UnixMilli(created)
		sess.UpdatedAt = time.UnixMilli(updated)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
