package dfs

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
	CREATE TABLE IF NOT EXISTS dfs_calls (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		method    TEXT    NOT NULL,
		instance  TEXT    NOT NULL,
		chunks    INTEGER NOT NULL,
		bytes     INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	)
`

// Call is one acknowledged storage RPC.
type Call struct {
	ID        int64
	Method    string
	Instance  string
	Chunks    int64
	Bytes     int64
	Timestamp time.Time
}

// Ledger records storage calls in SQLite.
type Ledger struct {
	conn *sql.DB
}

// OpenLedger opens (and if needed creates) the ledger database at dbPath.
func OpenLedger(dbPath string) (*Ledger, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, err
	}

	return &Ledger{conn: conn}, nil
}

// Record inserts a call and returns its id. A zero Timestamp means now.
func (l *Ledger) Record(ctx context.Context, c Call) (int64, error) {
	query := `
		INSERT INTO dfs_calls (method, instance, chunks, bytes, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	result, err := l.conn.ExecContext(ctx, query, c.Method, c.Instance, c.Chunks, c.Bytes, c.Timestamp.UnixNano())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Calls returns recorded calls in insertion order, restricted to method when
// it is not empty.
func (l *Ledger) Calls(ctx context.Context, method string) ([]Call, error) {
	query := `
		SELECT id, method, instance, chunks, bytes, timestamp
		FROM dfs_calls
		WHERE ? = '' OR method = ?
		ORDER BY id
	`

	rows, err := l.conn.QueryContext(ctx, query, method, method)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var ts int64
		if err := rows.Scan(&c.ID, &c.Method, &c.Instance, &c.Chunks, &c.Bytes, &ts); err != nil {
			return nil, err
		}
		c.Timestamp = time.Unix(0, ts)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.conn.Close()
}
