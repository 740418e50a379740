package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/app"
	"github.com/alexisbeaulieu97/diva/internal/pipeline"
)

type previewOptions struct {
	page   int
	output string
	port   string
	size   int
}

func newPreviewCmd(root *rootFlags) *cobra.Command {
	opts := &previewOptions{}

	cmd := &cobra.Command{
		Use:   "preview <node.port>",
		Short: "Render a persisted processor output to a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.port = args[0]
			return runPreview(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", 0, "Page id")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default <page>-<node>-<port>.png)")
	cmd.Flags().IntVar(&opts.size, "size", 0, "Longest side of the preview in pixels (default from settings)")
	cmd.MarkFlagRequired("page") //nolint:errcheck

	return cmd
}

func runPreview(cmd *cobra.Command, root *rootFlags, opts *previewOptions) error {
	ref, err := pipeline.ParsePortRef(opts.port)
	if err != nil {
		return newCommandError("preview", "parsing the output reference", err, "Name the output as <node>.<port>, for example mag.magnitude.")
	}
	node, port := ref.Node, ref.Port

	a, err := openApp(cmd, root, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	size := opts.size
	if size <= 0 {
		size = a.settings.PreviewSize
	}
	output := opts.output
	if output == "" {
		output = fmt.Sprintf("%d-%s-%s.png", opts.page, node, port)
	}

	svc, err := a.service(a.plainHost())
	if err != nil {
		return err
	}

	delivered := make(chan *app.Preview, 1)
	future, err := svc.Preview(a.ctx, app.PreviewRequest{PageID: opts.page, Node: node, Port: port, MaxSize: size}, func(p *app.Preview, err error) {
		if err == nil {
			delivered <- p
		}
	})
	if err != nil {
		return newCommandError("preview", "requesting the preview", err, "Run 'diva pages list' to see the page ids.")
	}
	if err := future.Wait(a.ctx); err != nil {
		return newCommandError("preview", fmt.Sprintf("rendering %s.%s of page %d", node, port, opts.page), err, "Run 'diva process' first so the output is persisted.")
	}

	var preview *app.Preview
	select {
	case preview = <-delivered:
	case <-a.ctx.Done():
		return a.ctx.Err()
	}
	if preview == nil {
		return errors.New("preview: no image delivered")
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newCommandError("preview", "creating the output directory", err, "")
		}
	}
	if err := os.WriteFile(output, preview.PNG, 0o644); err != nil {
		return newCommandError("preview", "writing the preview", err, "Check file permissions and disk space.")
	}

	b := preview.Image.Bounds()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%dx%d)\n", output, b.Dx(), b.Dy())
	return nil
}
