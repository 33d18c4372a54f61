package restore

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Session is the ephemeral state of one restore run. It is owned
// exclusively by the orchestrator invocation that created it.
type Session struct {
	ID          string
	ArchivePath string
	Workspace   string
	Conflicts   []Conflict
	// WebAppPath is the final destination of the restored web
	// application, set once the file tree has been replaced.
	WebAppPath string
}

func newSession(archivePath, workspace string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ArchivePath: archivePath,
		Workspace:   workspace,
	}
}

// cleanup removes the temporary workspace and the consumed backup
// archive. Deleting the caller's archive file is part of the restore
// contract, not incidental tidying: a completed or aborted run always
// consumes its input. Cleanup failures are reported but never mask the
// run's own error.
func (s *Session) cleanup(out io.Writer) {
	fmt.Fprintln(out, "\nCleaning up...")
	if err := os.RemoveAll(s.Workspace); err != nil {
		slog.Warn("failed to remove workspace", "session", s.ID, "path", s.Workspace, "error", err)
	}
	if err := os.Remove(s.ArchivePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove backup archive", "session", s.ID, "path", s.ArchivePath, "error", err)
	}
	fmt.Fprintln(out, "✓ Cleanup completed")
}
