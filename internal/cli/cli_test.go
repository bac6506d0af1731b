package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/redrec/internal/testutil"
)

// cliRun is the outcome of one CLI invocation.
type cliRun struct {
	code   int
	stdout string
	stderr string
}

func noEnv(string) (string, bool) { return "", false }

// newTestOptions isolates the CLI from the process environment and makes
// ids and timestamps deterministic across invocations.
func newTestOptions(ids ...string) *RootOptions {
	return &RootOptions{
		lookupEnv: noEnv,
		clock:     testutil.NewDeterministicClock(1_000_000, 1_000),
		ids:       testutil.NewSequenceIDs(ids...),
	}
}

func runCLI(t *testing.T, opts *RootOptions, args ...string) cliRun {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), opts, args, &stdout, &stderr)
	return cliRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// writeConfig writes a config using a SQLite store in a temp dir and
// returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "redrec.yaml")
	content := `store:
  driver: sqlite
  path: ` + filepath.Join(dir, "redrec.db") + `
log:
  level: warn
collections:
  users:
    lookup_keys: [email]
  sessions:
    primary_keys: [org, user]
    lookup_keys: [token]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
