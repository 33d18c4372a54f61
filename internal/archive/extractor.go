// Package archive unpacks TextPAIR backup archives.
//
// A backup is a single LZ4-framed tar stream. Once unpacked it holds
// exactly one top-level directory containing zero or more table dumps
// named textpair_<table>.sql and at most one subdirectory carrying the
// full web application tree.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pierrec/lz4/v4"
)

const (
	// DumpPrefix and DumpExt identify table dump files inside the
	// backup directory.
	DumpPrefix = "textpair_"
	DumpExt    = ".sql"
)

var (
	ErrNotFound  = errors.New("backup archive not found")
	ErrCorrupt   = errors.New("backup archive is corrupt")
	ErrMalformed = errors.New("backup archive is malformed")
)

// Dump is one table dump found inside the backup directory.
type Dump struct {
	Table string
	Path  string
}

// Contents describes an unpacked backup.
type Contents struct {
	// Root is the single top-level directory of the archive.
	Root string
	// Dumps lists the table dumps in lexicographic file order.
	Dumps []Dump
	// WebAppDir is the web application subdirectory, or empty when the
	// backup carries none. When the backup holds more than one
	// subdirectory the lexicographically first one is taken.
	WebAppDir string
}

// Extract unpacks the archive at archivePath into workspace and
// validates its shape. The workspace is created fresh; a leftover
// directory from a crashed prior run is removed first.
func Extract(archivePath, workspace string) (*Contents, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, archivePath)
		}
		return nil, fmt.Errorf("failed to open backup archive %s: %w", archivePath, err)
	}
	defer f.Close()

	if err := os.RemoveAll(workspace); err != nil {
		return nil, fmt.Errorf("failed to clear workspace %s: %w", workspace, err)
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", workspace, err)
	}

	if err := unpack(lz4.NewReader(f), workspace); err != nil {
		return nil, err
	}
	return Inspect(workspace)
}

// unpack writes every tar entry under workspace, refusing entries that
// would escape it.
func unpack(r io.Reader, workspace string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}

		target, err := securePath(workspace, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || strings.Contains(hdr.Linkname, "..") {
				return fmt.Errorf("%w: unsafe symlink %s -> %s", ErrMalformed, hdr.Name, hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
		default:
			// Hard links, devices and the like have no business in a
			// backup; skip them rather than fail the whole restore.
			continue
		}
	}
}

// securePath joins name under workspace and rejects path traversal.
func securePath(workspace, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: unsafe entry path %q", ErrMalformed, name)
	}
	return filepath.Join(workspace, clean), nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0600)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out.Close()
}

// Inspect validates the unpacked workspace and enumerates its contents.
// It requires a single top-level directory holding at least one table
// dump.
func Inspect(workspace string) (*Contents, error) {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", workspace, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: archive is empty", ErrMalformed)
	}
	// ReadDir sorts by name, so the choice of entry is deterministic.
	top := entries[0]
	if !top.IsDir() {
		return nil, fmt.Errorf("%w: top-level entry %s is not a directory", ErrMalformed, top.Name())
	}

	contents := &Contents{Root: filepath.Join(workspace, top.Name())}

	inner, err := os.ReadDir(contents.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory %s: %w", contents.Root, err)
	}
	for _, entry := range inner {
		name := entry.Name()
		switch {
		case entry.IsDir():
			if contents.WebAppDir == "" {
				contents.WebAppDir = filepath.Join(contents.Root, name)
			}
		case strings.HasPrefix(name, DumpPrefix) && strings.HasSuffix(name, DumpExt):
			table := strings.TrimSuffix(strings.TrimPrefix(name, DumpPrefix), DumpExt)
			if table == "" {
				continue
			}
			contents.Dumps = append(contents.Dumps, Dump{
				Table: table,
				Path:  filepath.Join(contents.Root, name),
			})
		}
	}
	sort.Slice(contents.Dumps, func(i, j int) bool {
		return contents.Dumps[i].Path < contents.Dumps[j].Path
	})

	if len(contents.Dumps) == 0 {
		return nil, fmt.Errorf("%w: no table dumps found", ErrMalformed)
	}
	return contents, nil
}
