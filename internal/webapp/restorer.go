// Package webapp restores the generated TextPAIR web application: it
// replaces the deployed tree with the archive's copy, patches the app
// configuration and triggers the production build.
package webapp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileRestoreError reports a failed replacement of the destination
// web-app tree. Database work already completed is unaffected.
type FileRestoreError struct {
	Path string
	Err  error
}

func (e *FileRestoreError) Error() string {
	return fmt.Sprintf("failed to restore web application at %s: %v", e.Path, e.Err)
}

func (e *FileRestoreError) Unwrap() error { return e.Err }

// Restore replaces the web-app directory under destBase with srcDir's
// tree. An existing directory of the same name is removed entirely
// first. Returns the final destination path.
func Restore(srcDir, destBase string) (string, error) {
	dest := filepath.Join(destBase, filepath.Base(srcDir))

	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return "", &FileRestoreError{Path: dest, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return "", &FileRestoreError{Path: dest, Err: err}
	}

	if err := copyTree(srcDir, dest); err != nil {
		return "", &FileRestoreError{Path: dest, Err: err}
	}
	return dest, nil
}

// copyTree copies src to dest recursively, preserving structure,
// permissions and relative symlinks.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := dest
		if rel != "." {
			target = filepath.Join(dest, rel)
		}

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target)
		}
	})
}

func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
