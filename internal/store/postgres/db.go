// Package postgres keeps the action journal in PostgreSQL (Supabase or any
// vanilla server) through pgx.
package postgres

import (
	"cmp"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLock serialises Migrate across bot processes sharing a database.
const migrationLock int64 = 0x6372756465626f74 // "crudebot"

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS crudebot_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Config mirrors the [supabase] section. DSN, when set, wins over the parts.
type Config struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// ConnString returns the DSN, or a postgres:// URL assembled from the parts
// with the credentials escaped.
func (cfg Config) ConnString() string {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cmp.Or(cfg.Port, 5432))),
		Path:     "/" + cfg.Database,
		RawQuery: "sslmode=" + url.QueryEscape(cmp.Or(cfg.SSLMode, "disable")),
	}
	return u.String()
}

// DB is the journal database.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects a pool tagged with application_name=crudebot and pings it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "crudebot"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	db := &DB{pool: pool}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Actions returns the action journal backed by this database.
func (db *DB) Actions() *ActionStore { return NewActionStore(db.pool) }

// Ping is the "postgres" dependency check of the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

func (db *DB) Close() { db.pool.Close() }

// Migrate applies every embedded migration not yet recorded in
// crudebot_migrations, one transaction per file, in file name order.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("postgres: create migrations table: %w", err)
	}
	files, err := migrationFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		name := path.Base(file)
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
				return err
			}
			var applied bool
			err := tx.QueryRow(ctx,
				"SELECT EXISTS (SELECT 1 FROM crudebot_migrations WHERE name = $1)", name,
			).Scan(&applied)
			if err != nil || applied {
				return err
			}
			body, err := migrationsFS.ReadFile(file)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err = tx.Exec(ctx, "INSERT INTO crudebot_migrations (name) VALUES ($1)", name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: migration %s: %w", name, err)
		}
	}
	return nil
}

// migrationFiles lists the embedded migrations in apply order.
func migrationFiles() ([]string, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("postgres: list migrations: %w", err)
	}
	slices.Sort(files)
	return files, nil
}
