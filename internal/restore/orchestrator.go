// Package restore sequences the end-to-end restoration of a TextPAIR
// backup: extraction, conflict scan, confirmation gate, table restore,
// web-app restore, configuration patch, rebuild, and the unconditional
// cleanup that ends every run.
package restore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artfl-project/textpair-restore/internal/archive"
	"github.com/artfl-project/textpair-restore/internal/config"
	"github.com/artfl-project/textpair-restore/internal/webapp"
)

// ErrCancelled is returned when the caller declines the confirmation
// prompt. Nothing destructive has happened at that point.
var ErrCancelled = errors.New("restoration cancelled")

// Database is the destination database as the orchestrator sees it.
// *database.Postgres implements it; tests inject fakes.
type Database interface {
	Ping(ctx context.Context) error
	TableExists(ctx context.Context, table string) (bool, error)
	RestoreTable(ctx context.Context, table, dumpPath string) error
}

// Confirmer decides whether to proceed once conflicts are known. The
// orchestrator only consults it when conflicts exist and the force
// policy is off.
type Confirmer func(conflicts []Conflict) (bool, error)

// StdinConfirmer prompts on out and reads a single line from in; only
// "y" (case-insensitive) proceeds.
func StdinConfirmer(in io.Reader, out io.Writer) Confirmer {
	reader := bufio.NewReader(in)
	return func(conflicts []Conflict) (bool, error) {
		fmt.Fprint(out, "\nDo you want to proceed with the restoration? This will replace all existing resources (y/n): ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		return strings.EqualFold(strings.TrimSpace(line), "y"), nil
	}
}

// Swapped in tests.
var (
	extractArchive = archive.Extract
	restoreWebApp  = webapp.Restore
	patchConfig    = webapp.PatchConfig
	buildWebApp    = webapp.Build
)

// Options selects the behavior of one run.
type Options struct {
	// ArchivePath is the backup archive to consume.
	ArchivePath string
	// WebAppDest overrides the settings' web-app base path when set.
	WebAppDest string
	// Force skips the confirmation gate and downgrades configuration
	// and build failures to warnings.
	Force bool
}

// Orchestrator owns the restore sequence. Construct with New; fields
// may be overridden before Run.
type Orchestrator struct {
	Settings *config.Settings
	DB       Database
	Confirm  Confirmer
	// Out receives the per-phase progress narration.
	Out io.Writer
	// Workspace is the fixed temporary directory backups are unpacked
	// into. A leftover from a crashed run is destroyed before use,
	// which makes concurrent runs on one host unsafe by design.
	Workspace string
}

func New(settings *config.Settings, db Database) *Orchestrator {
	return &Orchestrator{
		Settings:  settings,
		DB:        db,
		Confirm:   StdinConfirmer(os.Stdin, os.Stdout),
		Out:       os.Stdout,
		Workspace: filepath.Join(os.TempDir(), "textpair_restore_temp"),
	}
}

// Run executes the full restore sequence. Once extraction has begun,
// the workspace and the consumed archive are deleted no matter how the
// run ends; before that, a failure leaves the archive untouched.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	fmt.Fprintf(o.Out, "\nStarting TextPAIR restoration from: %s\n", opts.ArchivePath)

	// Pre-flight: nothing destructive may happen past a failure here.
	fmt.Fprintln(o.Out, "\nChecking database connection...")
	if err := o.DB.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(o.Out, "✓ Database connection verified")

	if _, err := os.Stat(opts.ArchivePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", archive.ErrNotFound, opts.ArchivePath)
		}
		return fmt.Errorf("failed to stat backup archive %s: %w", opts.ArchivePath, err)
	}

	session := newSession(opts.ArchivePath, o.Workspace)
	slog.Info("restore session started",
		"session", session.ID, "archive", opts.ArchivePath, "force", opts.Force)
	defer session.cleanup(o.Out)

	fmt.Fprintln(o.Out, "\nExtracting backup archive...")
	contents, err := extractArchive(opts.ArchivePath, session.Workspace)
	if err != nil {
		return err
	}
	fmt.Fprintln(o.Out, "✓ Backup extracted successfully")

	destBase := opts.WebAppDest
	if destBase == "" {
		destBase = o.Settings.WebApp.Path
	}

	if !opts.Force {
		fmt.Fprintln(o.Out, "\nChecking for existing resources...")
		conflicts, err := scanConflicts(ctx, o.DB, contents, destBase)
		if err != nil {
			return err
		}
		session.Conflicts = conflicts
		if len(conflicts) > 0 {
			fmt.Fprintln(o.Out, "\nWARNING: The following resources will be overwritten:")
			for _, conflict := range conflicts {
				fmt.Fprintf(o.Out, "  - %s\n", conflict)
			}
			proceed, err := o.Confirm(conflicts)
			if err != nil {
				return err
			}
			if !proceed {
				fmt.Fprintln(o.Out, "Restoration cancelled")
				return ErrCancelled
			}
		}
	}

	if err := o.restoreTables(ctx, contents); err != nil {
		return err
	}

	if contents.WebAppDir == "" {
		fmt.Fprintln(o.Out, "\n✓ Restore completed successfully!")
		return nil
	}
	if err := o.deployWebApp(ctx, session, contents.WebAppDir, destBase, opts.Force); err != nil {
		return err
	}

	fmt.Fprintln(o.Out, "\n✓ Restore completed successfully!")
	fmt.Fprintf(o.Out, "The restored corpus is viewable at: %s\n",
		viewableURL(o.Settings.WebApp.APIServer, session.WebAppPath))
	return nil
}

// restoreTables replaces each destination table, in the archive's
// sorted dump order. The first failure stops remaining tables; earlier
// tables stand.
func (o *Orchestrator) restoreTables(ctx context.Context, contents *archive.Contents) error {
	fmt.Fprintln(o.Out, "\nRestoring database tables...")
	fmt.Fprintf(o.Out, "Found %d tables to restore\n", len(contents.Dumps))

	for _, dump := range contents.Dumps {
		fmt.Fprintf(o.Out, "  - Restoring table %s...\n", dump.Table)
		if err := o.DB.RestoreTable(ctx, dump.Table, dump.Path); err != nil {
			fmt.Fprintf(o.Out, "  ✗ Table %s failed\n", dump.Table)
			return err
		}
		fmt.Fprintf(o.Out, "  ✓ Table %s restored\n", dump.Table)
	}
	fmt.Fprintln(o.Out, "✓ Database restoration complete")
	return nil
}

// deployWebApp replaces the deployed tree, patches its configuration
// and rebuilds it. Configuration and build failures abort the run
// unless force downgrades them to warnings.
func (o *Orchestrator) deployWebApp(ctx context.Context, session *Session, srcDir, destBase string, force bool) error {
	fmt.Fprintln(o.Out, "\nRestoring web application files...")
	dest, err := restoreWebApp(srcDir, destBase)
	if err != nil {
		return err
	}
	session.WebAppPath = dest
	fmt.Fprintln(o.Out, "✓ Web application files restored")

	fmt.Fprintln(o.Out, "\nConfiguring web application...")
	if err := patchConfig(dest, o.Settings.WebApp.APIServer); err != nil {
		if !force {
			return err
		}
		slog.Warn("continuing despite configuration failure", "session", session.ID, "error", err)
		fmt.Fprintln(o.Out, "✗ Failed to update web application configuration (continuing)")
	} else {
		fmt.Fprintln(o.Out, "✓ Configuration updated")
	}

	fmt.Fprintln(o.Out, "\nRebuilding web application...")
	if err := buildWebApp(ctx, dest, o.Out); err != nil {
		if !force {
			return err
		}
		slog.Warn("continuing despite build failure", "session", session.ID, "error", err)
		fmt.Fprintln(o.Out, "✗ Failed to rebuild web application (continuing)")
	} else {
		fmt.Fprintln(o.Out, "✓ Web application rebuilt successfully")
	}
	return nil
}

// viewableURL derives the public location of the restored corpus from
// the API endpoint URL.
func viewableURL(apiServer, webAppPath string) string {
	base := strings.TrimSuffix(strings.Replace(apiServer, "-api", "", 1), "/")
	return base + "/" + filepath.Base(webAppPath)
}
