// textpair-restore - Restore a TextPAIR corpus backup
// Replaces the destination database tables and web application with a
// backup archive's contents, then rebuilds the web application.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/artfl-project/textpair-restore/internal/config"
	"github.com/artfl-project/textpair-restore/internal/database"
	"github.com/artfl-project/textpair-restore/internal/restore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <backup-archive>\n\n", os.Args[0])
	fmt.Fprintln(flag.CommandLine.Output(), "Restores TextPAIR database tables and web files from a backup archive.")
	fmt.Fprintln(flag.CommandLine.Output(), "The archive file is deleted once the restore run ends.")
	fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "Path to the global settings file (default "+config.DefaultPath+")")
	webAppDest := flag.String("web-app-dest", "", "Destination path override for web application files")
	force := flag.Bool("force", false, "Overwrite existing tables/files without prompting and downgrade non-database failures to warnings")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("textpair-restore %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	archivePath := flag.Arg(0)

	// Setup logging
	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load global settings", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := restore.New(settings, database.NewPostgres(&settings.Database))
	err = orchestrator.Run(ctx, restore.Options{
		ArchivePath: archivePath,
		WebAppDest:  *webAppDest,
		Force:       *force,
	})
	if errors.Is(err, restore.ErrCancelled) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nRestore failed: %v\n", err)
		os.Exit(1)
	}
}
