package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/darktomcat119/Health-AI-MVP/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	maxRetries     = 3
	retryBaseDelay = 50 * time.Millisecond
)

// SQLite implements Store on an SQLite database. A session is one row in
// sessions plus its ordered rows in messages, always written in a single
// transaction.
type SQLite struct {
	db   *sql.DB
	opts Options
	now  Clock
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string, opts Options) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db, opts: opts, now: opts.clock()}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		cumulative_risk INTEGER NOT NULL DEFAULT 0,
		current_risk_level TEXT NOT NULL,
		high_risk_count INTEGER NOT NULL DEFAULT 0,
		triage_activated INTEGER NOT NULL DEFAULT 0,
		human_handoff INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		risk_score INTEGER,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Session, error) {
	var sess *domain.Session
	err := s.withRetry(ctx, "get", id, func(tx *sql.Tx) error {
		var err error
		sess, err = loadSession(ctx, tx, id)
		if err != nil {
			return err
		}
		if sess.Expired(s.now(), s.opts.MaxAge) {
			if err := deleteSession(ctx, tx, id); err != nil {
				return err
			}
			sess = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.WrapSession("store.get", id, domain.ErrSessionExpired)
	}
	return sess, nil
}

func (s *SQLite) Create(ctx context.Context, sess *domain.Session) error {
	return s.withRetry(ctx, "create", sess.ID, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sess.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists > 0 {
			return domain.WrapSession("store.create", sess.ID, ErrDuplicate)
		}
		return saveSession(ctx, tx, sess)
	})
}

func (s *SQLite) Update(ctx context.Context, sess *domain.Session) error {
	return s.withRetry(ctx, "update", sess.ID, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sess.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return domain.WrapSession("store.update", sess.ID, domain.ErrSessionNotFound)
		}
		return saveSession(ctx, tx, sess)
	})
}

func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	var found bool
	err := s.withRetry(ctx, "delete", id, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		found = rows > 0
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		return nil
	})
	return found, err
}

func (s *SQLite) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE created_at >= ?`, s.cutoff()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

func (s *SQLite) SweepExpired(ctx context.Context) (int, error) {
	var n int64
	cutoff := s.cutoff()
	err := s.withRetry(ctx, "sweep", "", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id IN (SELECT id FROM sessions WHERE created_at < ?)`, cutoff)
		if err != nil {
			return fmt.Errorf("delete expired messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// cutoff is the oldest creation time that is still active. A session is
// expired when now - created_at > MaxAge.
func (s *SQLite) cutoff() int64 {
	return s.now().Add(-s.opts.MaxAge).UnixNano()
}

// withRetry runs fn in a transaction, retrying with exponential backoff on
// SQLITE_BUSY and "database is locked".
func (s *SQLite) withRetry(ctx context.Context, op, id string, fn func(*sql.Tx) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.inTx(ctx, fn)
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		delay := retryBaseDelay * time.Duration(1<<i)
		slog.Debug("sqlite store busy, retrying",
			"op", op,
			"session_id", id,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s session %s after %d attempts: %w", op, id, maxRetries, err)
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func loadSession(ctx context.Context, tx *sql.Tx, id string) (*domain.Session, error) {
	query := `
		SELECT id, cumulative_risk, current_risk_level, high_risk_count,
		       triage_activated, human_handoff, created_at, last_activity
		FROM sessions WHERE id = ?`

	var sess domain.Session
	var level string
	var createdAt, lastActivity int64
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.CumulativeRisk, &level, &sess.HighRiskCount,
		&sess.TriageActivated, &sess.HumanHandoff, &createdAt, &lastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapSession("store.get", id, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	sess.CurrentRiskLevel = domain.RiskLevel(level)
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.LastActivity = time.Unix(0, lastActivity).UTC()

	rows, err := tx.QueryContext(ctx, `
		SELECT role, content, risk_score, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var m domain.Message
		var role string
		var score sql.NullInt64
		var ts int64
		if err := rows.Scan(&role, &m.Content, &score, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = domain.Role(role)
		m.Timestamp = time.Unix(0, ts).UTC()
		if score.Valid {
			v := int(score.Int64)
			m.RiskScore = &v
			sess.RiskScores = append(sess.RiskScores, v)
		}
		sess.Messages = append(sess.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return &sess, nil
}

// saveSession upserts the session row and appends messages not yet stored.
// Messages are immutable, so existing rows are never rewritten.
func saveSession(ctx context.Context, tx *sql.Tx, sess *domain.Session) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, cumulative_risk, current_risk_level, high_risk_count,
			triage_activated, human_handoff, created_at, last_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cumulative_risk = excluded.cumulative_risk,
			current_risk_level = excluded.current_risk_level,
			high_risk_count = excluded.high_risk_count,
			triage_activated = excluded.triage_activated,
			human_handoff = excluded.human_handoff,
			last_activity = excluded.last_activity`,
		sess.ID, sess.CumulativeRisk, string(sess.CurrentRiskLevel), sess.HighRiskCount,
		sess.TriageActivated, sess.HumanHandoff,
		sess.CreatedAt.UnixNano(), sess.LastActivity.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sess.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	for i := stored; i < len(sess.Messages); i++ {
		m := sess.Messages[i]
		var score interface{}
		if m.RiskScore != nil {
			score = *m.RiskScore
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, seq, role, content, risk_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, i, string(m.Role), m.Content, score, m.Timestamp.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return nil
}

func deleteSession(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
