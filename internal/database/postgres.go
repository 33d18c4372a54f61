// Package database talks to the destination PostgreSQL server.
//
// Catalog probes and drops go through the pgx driver; dump execution is
// delegated to the psql client with the password passed only through
// the child process environment. Every operation opens a fresh
// connection; no transaction spans the restore.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/artfl-project/textpair-restore/internal/config"
)

var ErrConnection = errors.New("cannot connect to database")

// TableRestoreError reports a failed drop or recreate for one table.
// Tables restored before the failure are left in place.
type TableRestoreError struct {
	Table string
	Err   error
}

func (e *TableRestoreError) Error() string {
	return fmt.Sprintf("failed to restore table %s: %v", e.Table, e.Err)
}

func (e *TableRestoreError) Unwrap() error { return e.Err }

// Postgres performs restore operations against one destination
// database described by the global settings.
type Postgres struct {
	settings *config.DatabaseSettings
}

func NewPostgres(settings *config.DatabaseSettings) *Postgres {
	return &Postgres{settings: settings}
}

// Swapped in tests.
var (
	runPsql = func(ctx context.Context, env []string, args ...string) ([]byte, error) {
		cmd := exec.CommandContext(ctx, "psql", args...)
		cmd.Env = env
		return cmd.CombinedOutput()
	}
	dropTable = func(ctx context.Context, settings *config.DatabaseSettings, table string) error {
		db, err := open(settings)
		if err != nil {
			return err
		}
		defer db.Close()
		// Table names cannot be bound parameters; quote through the
		// driver's identifier sanitizer instead of string-building.
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{table}.Sanitize())
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("drop failed: %w", err)
		}
		return nil
	}
)

func open(settings *config.DatabaseSettings) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn(settings))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func dsn(settings *config.DatabaseSettings) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		settings.Host, settings.Port, settings.User, settings.Password, settings.Name, settings.SSLMode)
}

// Ping verifies connectivity and credentials before anything
// destructive happens.
func (p *Postgres) Ping(ctx context.Context) error {
	db, err := open(p.settings)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// TableExists probes the destination catalog for a table of that name.
func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := open(p.settings)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var one int
	err = db.QueryRowContext(ctx,
		"SELECT 1 FROM information_schema.tables WHERE table_name = $1", table).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query table catalog: %w", err)
	}
	return true, nil
}

// RestoreTable replaces the destination table with the dump's contents:
// a cascading drop followed by executing the dump through psql. The two
// form one logical unit; a failure leaves earlier tables standing and
// is reported with the table name.
func (p *Postgres) RestoreTable(ctx context.Context, table, dumpPath string) error {
	if err := dropTable(ctx, p.settings, table); err != nil {
		return &TableRestoreError{Table: table, Err: err}
	}

	env := append(os.Environ(), "PGPASSWORD="+p.settings.Password)
	output, err := runPsql(ctx, env, p.psqlArgs(dumpPath)...)
	if err != nil {
		return &TableRestoreError{
			Table: table,
			Err:   fmt.Errorf("psql: %v: %s", err, strings.TrimSpace(string(output))),
		}
	}
	return nil
}

// psqlArgs builds the psql argument vector for executing one dump file.
// ON_ERROR_STOP makes psql's exit status reflect dump failures.
func (p *Postgres) psqlArgs(dumpPath string) []string {
	return []string{
		"-v", "ON_ERROR_STOP=1",
		"-h", p.settings.Host,
		"-p", strconv.Itoa(p.settings.Port),
		"-U", p.settings.User,
		"-d", p.settings.Name,
		"-f", dumpPath,
	}
}
