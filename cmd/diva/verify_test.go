package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyCommandDetectsDrift(t *testing.T) {
	path := setupProject(t)
	manifest := filepath.Join(filepath.Dir(path), ".diva", "manifest.txt")

	_, err := run(t, "--project", path, "verify")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--record")

	_, err = run(t, "--project", path, "process")
	require.NoError(t, err)

	output, err := run(t, "--project", path, "verify", "--record")
	require.NoError(t, err)
	require.Contains(t, output, "✓ Recorded 2 page(s)")
	data, err := os.ReadFile(manifest)
	require.NoError(t, err)
	require.Contains(t, string(data), "mag/")

	output, err = run(t, "--project", path, "verify")
	require.NoError(t, err)
	require.Contains(t, output, "✓ 2 page(s) match")

	_, err = run(t, "--project", path, "reset", "--page", "2", "--yes")
	require.NoError(t, err)

	output, err = run(t, "--project", path, "verify")
	require.Error(t, err)
	require.Contains(t, err.Error(), "state differs")
	require.Contains(t, output, "--- "+manifest)
	require.Contains(t, output, "+++ current")
	require.Contains(t, output, `-page 2 "second" pipeline=1 state=READY`)

	_, err = run(t, "--project", path, "verify", "--page", "1")
	require.Error(t, err, "a page subset never matches a full manifest")

	custom := filepath.Join(t.TempDir(), "one.txt")
	_, err = run(t, "--project", path, "verify", "--page", "1", "--record", "-m", custom)
	require.NoError(t, err)
	output, err = run(t, "--project", path, "verify", "--page", "1", "-m", custom)
	require.NoError(t, err)
	require.Contains(t, output, "✓ 1 page(s) match")
}

func TestResetCommand(t *testing.T) {
	path := setupProject(t)
	data := filepath.Join(filepath.Dir(path), ".diva", "pages")

	_, err := run(t, "--project", path, "process")
	require.NoError(t, err)

	_, err = run(t, "--project", path, "reset")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--yes")

	output, err := run(t, "--project", path, "reset", "--page", "1", "-y")
	require.NoError(t, err)
	require.Contains(t, output, "✓ Reset 1 of 1 page(s)")

	entries, err := os.ReadDir(filepath.Join(data, "1"))
	if err == nil {
		for _, e := range entries {
			sub, err := os.ReadDir(filepath.Join(data, "1", e.Name()))
			require.NoError(t, err)
			require.Empty(t, sub, "state of page 1 should be gone")
		}
	}
	_, err = os.Stat(filepath.Join(data, "2", "mag"))
	require.NoError(t, err)
}
