package webapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

var ErrBuild = errors.New("web application build failed")

// runNpm is swapped in tests.
var runNpm = func(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "npm", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Build produces a servable build of the restored web application: a
// dependency install followed by a production build, both run inside
// dir. The parent process's working directory is never touched.
func Build(ctx context.Context, dir string, progress io.Writer) error {
	steps := [][]string{
		{"install"},
		{"run", "build"},
	}
	for _, args := range steps {
		fmt.Fprintf(progress, "  - Running npm %s...\n", strings.Join(args, " "))
		output, err := runNpm(ctx, dir, args...)
		if err != nil {
			return fmt.Errorf("%w: npm %s: %v: %s",
				ErrBuild, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
		}
	}
	return nil
}
