package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/redrec/internal/canonical"
)

// Snapshot renders a run as canonical JSON:
//
//	{"scenario":"<name>","trace":[{"args":{...},"op":"create","outcome":{...},"step":1},...]}
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = ev
	}
	return canonical.Marshal(map[string]any{
		"scenario": name,
		"trace":    trace,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/<name>.golden. Run the test with -update to rewrite it.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snap, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snap)
	return nil
}

// CompareGolden checks snap against the file at path. With update set the
// file is (re)written and the comparison always succeeds. A missing file
// without update is reported as fs.ErrNotExist.
func CompareGolden(path string, snap []byte, update bool) (bool, error) {
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return false, fmt.Errorf("create golden dir: %w", err)
		}
		if err := os.WriteFile(path, snap, 0o644); err != nil {
			return false, fmt.Errorf("write golden file: %w", err)
		}
		return true, nil
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("golden file %s: %w", path, fs.ErrNotExist)
	}
	if err != nil {
		return false, fmt.Errorf("read golden file: %w", err)
	}
	return bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(snap)), nil
}

// GoldenPath returns where the CLI keeps the golden file for a scenario
// file: a golden/ directory next to it, named after the scenario.
func GoldenPath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}
