package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type verifyOptions struct {
	page     int
	manifest string
	record   bool
}

func newVerifyCmd(root *rootFlags) *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the persisted page state with a recorded manifest",
		Long: "verify renders a manifest of every persisted processor output (key, size and digest)\n" +
			"and compares it with a manifest recorded earlier with --record. Any difference is\n" +
			"printed as a diff and makes the command fail.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", -1, "Verify only this page id")
	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "Manifest file (default <project dir>/.diva/manifest.txt)")
	cmd.Flags().BoolVar(&opts.record, "record", false, "Record the current state as the manifest")

	return cmd
}

func runVerify(cmd *cobra.Command, root *rootFlags, opts *verifyOptions) error {
	a, err := openApp(cmd, root, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pages("verify", opts.page)
	if err != nil {
		return err
	}
	svc, err := a.service(a.plainHost())
	if err != nil {
		return err
	}

	path := opts.manifest
	if path == "" {
		path = filepath.Join(a.project.Root(), ".diva", "manifest.txt")
	}
	out := cmd.OutOrStdout()

	if opts.record {
		manifest, err := svc.Manifest(a.ctx, pages)
		if err != nil {
			return newCommandError("verify", "building the manifest", err, "")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return newCommandError("verify", "creating the manifest directory", err, "")
		}
		if err := os.WriteFile(path, manifest, 0o644); err != nil {
			return newCommandError("verify", "writing the manifest", err, "Check file permissions and disk space.")
		}
		_, _ = fmt.Fprintf(out, "✓ Recorded %d page(s) to %s\n", len(pages), path)
		return nil
	}

	recorded, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return newCommandError("verify", "reading the manifest", err, "Run 'diva verify --record' to record one.")
	}
	if err != nil {
		return newCommandError("verify", "reading the manifest", err, "")
	}

	v, err := svc.Verify(a.ctx, pages, recorded, path)
	if err != nil {
		return newCommandError("verify", "building the manifest", err, "")
	}
	if v.OK() {
		_, _ = fmt.Fprintf(out, "✓ %d page(s) match %s\n", len(pages), path)
		return nil
	}

	_, _ = fmt.Fprint(out, v.Diff)
	return newCommandError("verify", "comparing page state", fmt.Errorf("state differs from %s (%s lines)", path, v.Stats), "Run 'diva verify --record' to accept the current state.")
}
