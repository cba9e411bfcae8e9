package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	defaultSQLitePath  = "accessreg.db"
	defaultPostgresDSN = "postgres://localhost/accessreg?sslmode=disable"
)

// dialect holds the driver name and the statements that differ per database.
type dialect struct {
	name   string
	driver string
	create string
	upsert string
	scan   string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS %s (
			bucket TEXT NOT NULL,
			record_key TEXT NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (bucket, record_key)
		)`,
		upsert: `INSERT INTO %s(bucket, record_key, payload) VALUES(?, ?, ?)
			ON CONFLICT(bucket, record_key) DO UPDATE SET payload=excluded.payload`,
		scan: `SELECT bucket, record_key, payload FROM %s`,
	}
	postgresDialect = dialect{
		name:   "postgres",
		driver: "pgx",
		create: `CREATE TABLE IF NOT EXISTS %s (
			bucket TEXT NOT NULL,
			record_key TEXT NOT NULL,
			payload BYTEA NOT NULL,
			PRIMARY KEY (bucket, record_key)
		)`,
		upsert: `INSERT INTO %s(bucket, record_key, payload) VALUES($1, $2, $3)
			ON CONFLICT(bucket, record_key) DO UPDATE SET payload=EXCLUDED.payload`,
		scan: `SELECT bucket, record_key, payload FROM %s`,
	}
)

// SQLStore serves reads from an in-memory copy and writes every committed
// unit of work through to a SQL table in a single database transaction.
// A unit whose SQL transaction fails is not applied in memory either.
type SQLStore struct {
	*MemoryStore
	db      *sql.DB
	dialect dialect
	table   string
}

// Compile-time assertion that SQLStore satisfies Store.
var _ Store = (*SQLStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	s, err := newSQLStore(ctx, sqliteDialect, path, opts...)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; keep a single connection so units never contend.
	s.db.SetMaxOpenConns(1)
	return s, nil
}

// NewPostgresStore connects to Postgres using dsn (falls back to a local default).
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	return newSQLStore(ctx, postgresDialect, dsn, opts...)
}

func newSQLStore(ctx context.Context, d dialect, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultSQLOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := o.open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.create, o.table)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s table: %w", o.table, err)
	}

	s := &SQLStore{MemoryStore: NewMemoryStore(), db: db, dialect: d, table: o.table}
	if err := s.hydrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.MemoryStore.commit = s.persist
	return s, nil
}

func (s *SQLStore) hydrate(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(s.dialect.scan, s.table))
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var writes []Write
	for rows.Next() {
		var w Write
		if err := rows.Scan(&w.Bucket, &w.Key, &w.Value); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	s.MemoryStore.load(writes)
	return nil
}

// persist writes one unit's records in a single SQL transaction.
func (s *SQLStore) persist(ctx context.Context, writes []Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt := fmt.Sprintf(s.dialect.upsert, s.table)
	for _, w := range writes {
		if _, err := tx.ExecContext(ctx, stmt, w.Bucket, w.Key, w.Value); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", w.Bucket, w.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Close closes the store and the database handle.
func (s *SQLStore) Close() error {
	_ = s.MemoryStore.Close()
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Open builds the store named by driver: "memory", "sqlite" or "postgres".
// dsn is the SQLite file path or the Postgres connection string.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, dsn, opts...)
	case "postgres":
		return NewPostgresStore(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
