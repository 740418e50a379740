package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/diva/internal/config"
	"github.com/alexisbeaulieu97/diva/internal/ports"
)

func TestPagesCommands(t *testing.T) {
	path := setupProject(t)
	dir := filepath.Dir(path)

	output, err := run(t, "--project", path, "pages", "list")
	require.NoError(t, err)
	require.Contains(t, output, "one.png")
	require.Contains(t, output, "second")
	require.Contains(t, output, filepath.Join(dir, "scans", "two.png"))

	writePNG(t, filepath.Join(dir, "scans", "three.png"))
	output, err = run(t, "--project", path, "pages", "add", filepath.Join(dir, "scans", "three.png"), "--name", "third")
	require.NoError(t, err)
	require.Contains(t, output, "✓ Added page 3 (third)")

	output, err = run(t, "--project", path, "pages", "assign", "3", "2")
	require.NoError(t, err)
	require.Contains(t, output, "✓ Page 3 now runs gray-only")

	cfg, err := config.ParseProject(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pages, 3)
	require.Equal(t, filepath.Join("scans", "three.png"), cfg.Pages[2].Image)
	require.Equal(t, 2, cfg.Pages[2].Pipeline)

	_, err = run(t, "--project", path, "pages", "rm", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--yes")

	output, err = run(t, "--project", path, "pages", "rm", "1", "3", "--yes")
	require.NoError(t, err)
	require.Contains(t, output, "✓ Removed 2 page(s)")

	cfg, err = config.ParseProject(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pages, 1)
	require.Equal(t, 2, cfg.Pages[0].ID)
}

func TestPagesCommandErrors(t *testing.T) {
	path := setupProject(t)

	_, err := run(t, "--project", path, "pages", "add", "missing.png")
	require.Error(t, err)
	require.Contains(t, err.Error(), "existing image")

	_, err = run(t, "--project", path, "pages", "rm", "x", "--yes")
	require.Error(t, err)
	require.Contains(t, err.Error(), `invalid page id "x"`)

	_, err = run(t, "--project", path, "pages", "rm", "42", "--yes")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown page 42")

	_, err = run(t, "--project", path, "pages", "assign", "1", "9")
	require.Error(t, err)

	_, err = run(t, "--project", path, "pages", "assign", "1", "-1")
	require.Error(t, err)
}

func TestPagesListEmpty(t *testing.T) {
	path := setupProject(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	trimmed := strings.Split(string(data), "pages:\n")[0]
	require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o644))

	output, err := run(t, "--project", path, "pages", "list")
	require.NoError(t, err)
	require.Contains(t, output, "No pages yet.")
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  ports.Answer
	}{
		{"y\n", ports.AnswerYes},
		{"YES\n", ports.AnswerYes},
		{"n\n", ports.AnswerNo},
		{"\n", ports.AnswerNo},
		{"c\n", ports.AnswerCancel},
		{"", ports.AnswerCancel},
	}
	for _, tt := range tests {
		var out strings.Builder
		got := promptConfirmer{in: strings.NewReader(tt.input), out: &out}.Confirm("Delete?")
		require.Equal(t, tt.want, got, "input %q", tt.input)
		require.Equal(t, "Delete? [y/N/c]: ", out.String())
	}
}

func TestParseIDsAndRelativeTo(t *testing.T) {
	ids, err := parseIDs([]string{"1", " 2 "})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, ids)

	_, err = parseIDs([]string{"0"})
	require.Error(t, err)

	dir := t.TempDir()
	require.Equal(t, filepath.Join("a", "b.png"), relativeTo(dir, filepath.Join(dir, "a", "b.png")))
	outside := filepath.Join(filepath.Dir(dir), "elsewhere.png")
	require.Equal(t, outside, relativeTo(dir, outside))
}
