package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLDialect selects the query syntax of an SQLStore.
type SQLDialect int

const (
	// DialectPostgreSQL uses $n placeholders and ON CONFLICT upserts.
	DialectPostgreSQL SQLDialect = iota
	// DialectSQLite uses ? placeholders and stores times as fixed-width UTC text.
	DialectSQLite
)

// String returns the database/sql driver name of the dialect.
func (d SQLDialect) String() string {
	switch d {
	case DialectPostgreSQL:
		return "postgres"
	case DialectSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// ParseDialect returns the dialect for a driver name.
func ParseDialect(name string) (SQLDialect, error) {
	switch name {
	case "postgres", "postgresql", "pq":
		return DialectPostgreSQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return 0, fmt.Errorf("session: unsupported SQL dialect %q", name)
	}
}

// sqliteTime sorts lexically in time order.
const sqliteTime = "2006-01-02 15:04:05.000000000"

// queries holds the statements of one dialect. %[1]s is the table name.
type queries struct {
	save    string
	load    string
	delete  string
	touch   string
	sweep   string
	create  string
	index   string
	timeArg func(time.Time) any
}

var dialects = map[SQLDialect]queries{
	DialectPostgreSQL: {
		save: `INSERT INTO %[1]s (id, data, expires_at, updated_at) VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		load:   `SELECT data FROM %[1]s WHERE id = $1 AND expires_at > $2`,
		delete: `DELETE FROM %[1]s WHERE id = $1`,
		touch:  `UPDATE %[1]s SET expires_at = $1, updated_at = NOW() WHERE id = $2`,
		sweep:  `DELETE FROM %[1]s WHERE expires_at < $1`,
		create: `CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(64) PRIMARY KEY,
			data BYTEA NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		index:   `CREATE INDEX IF NOT EXISTS idx_%[1]s_expires ON %[1]s(expires_at)`,
		timeArg: func(t time.Time) any { return t },
	},
	DialectSQLite: {
		save: `INSERT INTO %[1]s (id, data, expires_at, updated_at) VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at, updated_at = datetime('now')`,
		load:   `SELECT data FROM %[1]s WHERE id = ? AND expires_at > ?`,
		delete: `DELETE FROM %[1]s WHERE id = ?`,
		touch:  `UPDATE %[1]s SET expires_at = ?, updated_at = datetime('now') WHERE id = ?`,
		sweep:  `DELETE FROM %[1]s WHERE expires_at < ?`,
		create: `CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT DEFAULT (datetime('now')),
			updated_at TEXT DEFAULT (datetime('now'))
		)`,
		index:   `CREATE INDEX IF NOT EXISTS idx_%[1]s_expires ON %[1]s(expires_at)`,
		timeArg: func(t time.Time) any { return t.UTC().Format(sqliteTime) },
	},
}

// SQLStore keeps sessions in a SQL table. Schema (PostgreSQL):
//
//	CREATE TABLE reflex_sessions (
//	    id VARCHAR(64) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
//	    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//	CREATE INDEX idx_reflex_sessions_expires ON reflex_sessions(expires_at);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	q         queries
	sweepIvl  time.Duration
	closed    bool
	done      chan struct{}
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*SQLStore)

// WithSQLTableName sets the table name. Default: "reflex_sessions".
func WithSQLTableName(name string) SQLStoreOption {
	return func(s *SQLStore) {
		s.tableName = name
	}
}

// WithSQLDialect sets the query dialect. Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(s *SQLStore) {
		s.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired rows are deleted. Zero
// disables the sweeper. Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(s *SQLStore) {
		s.sweepIvl = d
	}
}

// NewSQLStore creates a store on db. The database is not closed by Close.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:        db,
		tableName: "reflex_sessions",
		dialect:   DialectPostgreSQL,
		sweepIvl:  5 * time.Minute,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.q = dialects[s.dialect]

	if s.sweepIvl > 0 {
		go s.sweepLoop()
	}
	return s
}

func (s *SQLStore) query(tmpl string) string {
	return fmt.Sprintf(tmpl, s.tableName)
}

// Save upserts the session row.
func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	if s.closed {
		return ErrStoreClosed{}
	}
	_, err := s.db.ExecContext(ctx, s.query(s.q.save), sessionID, data, s.q.timeArg(expiresAt))
	return err
}

// Load returns the row data if it has not expired.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed {
		return nil, ErrStoreClosed{}
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, s.query(s.q.load), sessionID, s.q.timeArg(time.Now())).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes the session row.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	if s.closed {
		return ErrStoreClosed{}
	}
	_, err := s.db.ExecContext(ctx, s.query(s.q.delete), sessionID)
	return err
}

// Touch updates the row expiry.
func (s *SQLStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if s.closed {
		return ErrStoreClosed{}
	}
	_, err := s.db.ExecContext(ctx, s.query(s.q.touch), s.q.timeArg(expiresAt), sessionID)
	return err
}

// Close stops the sweeper.
func (s *SQLStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SQLStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.query(s.q.sweep), s.q.timeArg(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepIvl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, _ = s.Sweep(ctx)
			cancel()
		case <-s.done:
			return
		}
	}
}

// CreateTable creates the session table and its expiry index if missing.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.query(s.q.create)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.query(s.q.index))
	return err
}
