package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"spe/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect captures the few places where the SQL backends disagree.
type dialect struct {
	driver   string
	schema   []string
	upsertKV string
	upsertBl string
	dollar   bool // postgres-style $n placeholders
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS spe_kv (
				name TEXT PRIMARY KEY,
				body TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS spe_blobs (
				name TEXT PRIMARY KEY,
				data BLOB NOT NULL,
				content_type TEXT NOT NULL DEFAULT '',
				updated_at INTEGER NOT NULL
			)`,
		},
		upsertKV: `INSERT INTO spe_kv (name, body, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		upsertBl: `INSERT INTO spe_blobs (name, data, content_type, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET data = excluded.data, content_type = excluded.content_type, updated_at = excluded.updated_at`,
	},
	"postgres": {
		driver: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS spe_kv (
				name TEXT PRIMARY KEY,
				body TEXT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS spe_blobs (
				name TEXT PRIMARY KEY,
				data BYTEA NOT NULL,
				content_type TEXT NOT NULL DEFAULT '',
				updated_at BIGINT NOT NULL
			)`,
		},
		upsertKV: `INSERT INTO spe_kv (name, body, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		upsertBl: `INSERT INTO spe_blobs (name, data, content_type, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, content_type = EXCLUDED.content_type, updated_at = EXCLUDED.updated_at`,
		dollar: true,
	},
	"mysql": {
		driver: "mysql",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS spe_kv (
				name VARCHAR(255) PRIMARY KEY,
				body LONGTEXT NOT NULL,
				updated_at BIGINT NOT NULL
			) CHARACTER SET utf8mb4`,
			`CREATE TABLE IF NOT EXISTS spe_blobs (
				name VARCHAR(255) PRIMARY KEY,
				data LONGBLOB NOT NULL,
				content_type VARCHAR(255) NOT NULL DEFAULT '',
				updated_at BIGINT NOT NULL
			) CHARACTER SET utf8mb4`,
		},
		upsertKV: `INSERT INTO spe_kv (name, body, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`,
		upsertBl: `INSERT INTO spe_blobs (name, data, content_type, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE data = VALUES(data), content_type = VALUES(content_type), updated_at = VALUES(updated_at)`,
	},
}

// SQL is a Store and BlobCache over database/sql. One instance serves
// SQLite, Postgres or MySQL depending on the driver it was opened with.
type SQL struct {
	conn *sql.DB
	d    dialect
	path string // SQLite file path, empty for server databases
}

// OpenSQLite opens (or creates) the SQLite file at dbPath.
func OpenSQLite(dbPath string) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer
	conn.SetMaxOpenConns(1)

	s := &SQL{conn: conn, d: dialects["sqlite"], path: dbPath}
	if err := s.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenSQL opens a server-backed store. driver is "postgres" or "mysql".
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	d, ok := dialects[driver]
	if !ok || driver == "sqlite" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	conn, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, driver, err)
	}

	s := &SQL{conn: conn, d: d}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the SQLite file path, or "" for server databases.
func (s *SQL) Path() string { return s.path }

// Driver returns the database/sql driver name.
func (s *SQL) Driver() string { return s.d.driver }

func (s *SQL) Close() error {
	return s.conn.Close()
}

func (s *SQL) migrate(ctx context.Context) error {
	for _, m := range s.d.schema {
		if _, err := s.conn.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// q rewrites ? placeholders for drivers that need $n.
func (s *SQL) q(query string) string {
	if !s.d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) Get(ctx context.Context, key string) (string, error) {
	var body string
	err := s.conn.QueryRowContext(ctx, s.q(`SELECT body FROM spe_kv WHERE name = ?`), key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFoundf("key %q", key)
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return body, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	if _, err := s.conn.ExecContext(ctx, s.q(s.d.upsertKV), key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetMany writes all entries in one transaction.
func (s *SQL) SetMany(ctx context.Context, entries ...domain.Entry) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	stmt := s.q(s.d.upsertKV)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, stmt, e.Key, e.Value, now); err != nil {
			return fmt.Errorf("set %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, s.q(`DELETE FROM spe_kv WHERE name = ?`), key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *SQL) GetBlob(ctx context.Context, key string) (domain.Blob, error) {
	var b domain.Blob
	err := s.conn.QueryRowContext(ctx,
		s.q(`SELECT data, content_type FROM spe_blobs WHERE name = ?`), key,
	).Scan(&b.Data, &b.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Blob{}, domain.NotFoundf("blob %q", key)
	}
	if err != nil {
		return domain.Blob{}, fmt.Errorf("get blob %q: %w", key, err)
	}
	return b, nil
}

func (s *SQL) PutBlob(ctx context.Context, key string, blob domain.Blob) error {
	data := blob.Data
	if data == nil {
		data = []byte{}
	}
	if _, err := s.conn.ExecContext(ctx, s.q(s.d.upsertBl), key, data, blob.ContentType, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}

func (s *SQL) DeleteBlob(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, s.q(`DELETE FROM spe_blobs WHERE name = ?`), key); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

// PostgresDSN builds a lib/pq connection string.
func PostgresDSN(host string, port int, user, password, database, sslMode string) string {
	if port == 0 {
		port = 5432
	}
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, database, sslMode,
	)
}

// MySQLDSN builds a go-sql-driver/mysql DSN.
func MySQLDSN(host string, port int, user, password, database string) string {
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4",
		user, password, host, port, database,
	)
}
