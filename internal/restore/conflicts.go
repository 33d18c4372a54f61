package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/artfl-project/textpair-restore/internal/archive"
)

// Conflict describes one pre-existing destination resource a restore
// would overwrite. Purely advisory; it blocks nothing on its own.
type Conflict string

// scanConflicts probes the destination database and directory for
// resources the archive would replace. Read-only; skipped entirely
// under the force policy.
func scanConflicts(ctx context.Context, db Database, contents *archive.Contents, destBase string) ([]Conflict, error) {
	var conflicts []Conflict

	for _, dump := range contents.Dumps {
		exists, err := db.TableExists(ctx, dump.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to check for existing table %s: %w", dump.Table, err)
		}
		if exists {
			conflicts = append(conflicts, Conflict(fmt.Sprintf("database table '%s'", dump.Table)))
		}
	}

	if contents.WebAppDir != "" {
		name := filepath.Base(contents.WebAppDir)
		if _, err := os.Stat(filepath.Join(destBase, name)); err == nil {
			conflicts = append(conflicts, Conflict(fmt.Sprintf("web application directory '%s'", name)))
		}
	}
	return conflicts, nil
}
