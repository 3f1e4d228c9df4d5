package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-session-login/internal/errors"
	_ "modernc.org/sqlite"
)

var _ Repo = (*SQLiteRepo)(nil)

// SQLiteRepo persists sessions in a SQLite database so they survive restarts.
// Each operation runs in its own transaction; the single connection
// serializes writers.
type SQLiteRepo struct {
	db   *sql.DB
	idle time.Duration
	now  Clock
}

// OpenSQLiteRepo creates or opens the session database and runs migrations.
func OpenSQLiteRepo(path string, idle time.Duration, now Clock) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, unavailable(fmt.Errorf("opening database: %w", err))
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, unavailable(fmt.Errorf("migrating database: %w", err))
	}

	if now == nil {
		now = time.Now
	}
	return &SQLiteRepo{db: db, idle: idle, now: now}, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			last_access INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_access ON sessions(last_access)`,

		`CREATE TABLE IF NOT EXISTS session_values (
			token TEXT NOT NULL REFERENCES sessions(token) ON DELETE CASCADE,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (token, key)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// inTx runs fn in a transaction, committing only when fn succeeds. Errors
// from fn are returned as is; database failures are wrapped as unavailable.
func (r *SQLiteRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// touch checks the session is live and moves its last access to now. An
// expired session is deleted inside the same transaction.
func (r *SQLiteRepo) touch(ctx context.Context, tx *sql.Tx, token string, now time.Time) (time.Time, error) {
	var createdAt, lastAccess int64
	err := tx.QueryRowContext(ctx, `SELECT created_at, last_access FROM sessions WHERE token = ?`, token).
		Scan(&createdAt, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return time.Time{}, unavailable(err)
	}

	s := Session{LastAccess: time.Unix(0, lastAccess)}
	if s.Expired(now, r.idle) {
		if err := r.deleteTx(ctx, tx, token); err != nil {
			return time.Time{}, err
		}
		return time.Time{}, errExpiredInTx
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_access = ? WHERE token = ?`, now.UnixNano(), token); err != nil {
		return time.Time{}, unavailable(err)
	}
	return time.Unix(0, createdAt), nil
}

// errExpiredInTx lets an expired session's deletion commit before the
// caller reports it as not found.
var errExpiredInTx = errors.New("session expired")

// expiredAsNotFound commits the deletion of an expired session
func (r *SQLiteRepo) expiredAsNotFound(ctx context.Context, fn func(tx *sql.Tx) error) error {
	expired := false
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		err := fn(tx)
		if errors.Is(err, errExpiredInTx) {
			expired = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if expired {
		return errExpired
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	now := r.now()
	s := newSession(token, now)
	err := r.expiredAsNotFound(ctx, func(tx *sql.Tx) error {
		createdAt, err := r.touch(ctx, tx, token, now)
		if err != nil {
			return err
		}
		s.CreatedAt = createdAt

		rows, err := tx.QueryContext(ctx, `SELECT key, value FROM session_values WHERE token = ?`, token)
		if err != nil {
			return unavailable(err)
		}
		defer rows.Close()

		for rows.Next() {
			var key, raw string
			if err := rows.Scan(&key, &raw); err != nil {
				return unavailable(err)
			}
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return fmt.Errorf("session: failed to decode %s: %w", key, err)
			}
			s.Values[key] = v
		}
		if err := rows.Err(); err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) Create(ctx context.Context, token string, values map[string]any) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	now := r.now().UnixNano()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (token, created_at, last_access) VALUES (?, ?, ?) ON CONFLICT(token) DO NOTHING`,
			token, now, now)
		if err != nil {
			return unavailable(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errTokenInUse
		}

		for k, v := range values {
			if err := putValue(ctx, tx, token, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepo) Update(ctx context.Context, token, key string, value any) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	now := r.now()
	return r.expiredAsNotFound(ctx, func(tx *sql.Tx) error {
		if _, err := r.touch(ctx, tx, token, now); err != nil {
			return err
		}
		return putValue(ctx, tx, token, key, value)
	})
}

func putValue(ctx context.Context, tx *sql.Tx, token, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: failed to encode %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_values (token, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(token, key) DO UPDATE SET value = excluded.value`,
		token, key, string(data))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SQLiteRepo) deleteTx(ctx context.Context, tx *sql.Tx, token string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_values WHERE token = ?`, token); err != nil {
		return unavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, token string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return r.deleteTx(ctx, tx, token)
	})
}

func (r *SQLiteRepo) DeleteExpired(ctx context.Context) (int, error) {
	if r.idle <= 0 {
		return 0, nil
	}

	cutoff := r.now().Add(-r.idle).UnixNano()
	var removed int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_values WHERE token IN (SELECT token FROM sessions WHERE last_access < ?)`, cutoff); err != nil {
			return unavailable(err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_access < ?`, cutoff)
		if err != nil {
			return unavailable(err)
		}
		removed, err = res.RowsAffected()
		if err != nil {
			return unavailable(err)
		}
		return nil
	})
	return int(removed), err
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}
