package archive

import (
	"archive/tar"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"
)

type tarEntry struct {
	name     string
	typeflag byte
	body     string
	linkname string
}

func dirEntry(name string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeDir}
}

func fileEntry(name, body string) tarEntry {
	return tarEntry{name: name, typeflag: tar.TypeReg, body: body}
}

// buildArchive writes an LZ4-framed tar archive, the same shape the
// backup tool produces.
func buildArchive(t *testing.T, entries ...tarEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.tar.lz4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer f.Close()

	zw := lz4.NewWriter(f)
	tw := tar.NewWriter(zw)
	for _, entry := range entries {
		hdr := &tar.Header{
			Name:     entry.name,
			Typeflag: entry.typeflag,
			Mode:     0644,
			Linkname: entry.linkname,
			Size:     int64(len(entry.body)),
		}
		if entry.typeflag == tar.TypeDir {
			hdr.Mode = 0755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("failed to write tar header %s: %v", entry.name, err)
		}
		if entry.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(entry.body)); err != nil {
				t.Fatalf("failed to write tar body %s: %v", entry.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close lz4 writer: %v", err)
	}
	return path
}

func TestExtract(t *testing.T) {
	path := buildArchive(t,
		dirEntry("backup/"),
		fileEntry("backup/textpair_frequencies.sql", "CREATE TABLE frequencies ();"),
		fileEntry("backup/textpair_alignments.sql", "CREATE TABLE alignments ();"),
		dirEntry("backup/web_app/"),
		fileEntry("backup/web_app/appConfig.json", "{}"),
	)
	workspace := filepath.Join(t.TempDir(), "ws")

	contents, err := Extract(path, workspace)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if contents.Root != filepath.Join(workspace, "backup") {
		t.Errorf("root = %s", contents.Root)
	}
	if len(contents.Dumps) != 2 {
		t.Fatalf("dumps = %d, want 2", len(contents.Dumps))
	}
	// Lexicographic order: alignments before frequencies.
	if contents.Dumps[0].Table != "alignments" || contents.Dumps[1].Table != "frequencies" {
		t.Errorf("dump order = %s, %s", contents.Dumps[0].Table, contents.Dumps[1].Table)
	}
	if contents.WebAppDir != filepath.Join(contents.Root, "web_app") {
		t.Errorf("web app dir = %s", contents.WebAppDir)
	}
	data, err := os.ReadFile(filepath.Join(contents.WebAppDir, "appConfig.json"))
	if err != nil || string(data) != "{}" {
		t.Errorf("appConfig.json contents = %q, err = %v", data, err)
	}
}

func TestExtractClearsLeftoverWorkspace(t *testing.T) {
	path := buildArchive(t,
		dirEntry("backup/"),
		fileEntry("backup/textpair_alignments.sql", "x"),
	)
	workspace := filepath.Join(t.TempDir(), "ws")
	if err := os.MkdirAll(workspace, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(workspace, "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Extract(path, workspace); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("leftover workspace file survived extraction")
	}
}

func TestExtractMissingArchive(t *testing.T) {
	workspace := filepath.Join(t.TempDir(), "ws")
	_, err := Extract(filepath.Join(t.TempDir(), "nope.tar.lz4"), workspace)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.lz4")
	if err := os.WriteFile(path, []byte("this is not lz4 data"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Extract(path, filepath.Join(t.TempDir(), "ws"))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	path := buildArchive(t)
	_, err := Extract(path, filepath.Join(t.TempDir(), "ws"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestExtractTopLevelNotDirectory(t *testing.T) {
	path := buildArchive(t, fileEntry("readme.txt", "hello"))
	_, err := Extract(path, filepath.Join(t.TempDir(), "ws"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestExtractNoTableDumps(t *testing.T) {
	path := buildArchive(t,
		dirEntry("backup/"),
		dirEntry("backup/web_app/"),
		fileEntry("backup/web_app/index.html", "<html></html>"),
	)
	_, err := Extract(path, filepath.Join(t.TempDir(), "ws"))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	path := buildArchive(t,
		dirEntry("backup/"),
		fileEntry("../evil.txt", "pwned"),
	)
	parent := t.TempDir()
	workspace := filepath.Join(parent, "ws")
	_, err := Extract(path, workspace)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(statErr) {
		t.Error("path traversal entry escaped the workspace")
	}
}

func TestInspectPicksFirstDirectory(t *testing.T) {
	path := buildArchive(t,
		dirEntry("backup/"),
		fileEntry("backup/textpair_alignments.sql", "x"),
		dirEntry("backup/zeta_app/"),
		dirEntry("backup/alpha_app/"),
	)
	contents, err := Extract(path, filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if filepath.Base(contents.WebAppDir) != "alpha_app" {
		t.Errorf("web app dir = %s, want alpha_app", contents.WebAppDir)
	}
}
