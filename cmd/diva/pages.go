package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPagesCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage project pages",
	}

	cmd.AddCommand(newPagesListCmd(root))
	cmd.AddCommand(newPagesAddCmd(root))
	cmd.AddCommand(newPagesRemoveCmd(root))
	cmd.AddCommand(newPagesAssignCmd(root))

	return cmd
}

func newPagesListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, root, openOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			pages := a.project.Pages()
			if len(pages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pages yet.")
				fmt.Fprintln(cmd.OutOrStdout(), "\nRun 'diva pages add <image>' to add your first page.")
				return nil
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tNAME\tPIPELINE\tIMAGE")
			for _, page := range pages {
				fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", page.ID(), page.Name(), pipelineName(a.project.Pipelines(), page.PipelineID()), page.Image())
			}
			return writer.Flush()
		},
	}
}

func newPagesAddCmd(root *rootFlags) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <image>",
		Short: "Add a page for an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image := args[0]
			info, err := os.Stat(image)
			if err != nil {
				return newCommandError("add page", "checking the image", err, "Pass the path of an existing image file.")
			}
			if info.IsDir() {
				return newCommandError("add page", "checking the image", fmt.Errorf("%s is a directory, not a file", image), "")
			}

			a, err := openApp(cmd, root, openOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.project.AddPage(relativeTo(a.project.Root(), image), name)
			if err != nil {
				return newCommandError("add page", "adding the page", err, "")
			}
			if err := a.project.Save(); err != nil {
				return newCommandError("add page", "saving the project", err, "Check file permissions and disk space.")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Added page %d (%s)\n", page.ID(), page.Name())
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Page name (default the image file name)")

	return cmd
}

func newPagesRemoveCmd(root *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <page-id>...",
		Short: "Remove pages and their persisted state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return newCommandError("remove pages", "parsing page ids", err, "Page ids are positive integers.")
			}
			confirm, err := confirmerFor(cmd, "remove pages", yes)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, root, openOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range ids {
				if _, ok := a.project.Page(id); !ok {
					return newCommandError("remove pages", "selecting pages", fmt.Errorf("unknown page %d", id), "Run 'diva pages list' to see the page ids.")
				}
			}

			removed, err := a.project.DeletePages(a.ctx, ids, confirm)
			if !removed {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if saveErr := a.project.Save(); saveErr != nil {
				return newCommandError("remove pages", "saving the project", saveErr, "Check file permissions and disk space.")
			}
			if err != nil {
				return newCommandError("remove pages", "removing pages", err, "Retry once no other diva process is running on these pages.")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d page(s)\n", len(ids))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Remove without confirmation")

	return cmd
}

func newPagesAssignCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <page-id> <pipeline-id>",
		Short: "Assign a pipeline to a page; 0 selects the project default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return newCommandError("assign pipeline", "parsing the page id", err, "")
			}
			pipelineID, err := strconv.Atoi(args[1])
			if err != nil || pipelineID < 0 {
				return newCommandError("assign pipeline", "parsing the pipeline id", fmt.Errorf("invalid pipeline id %q", args[1]), "Pipeline ids are positive integers, 0 for the default.")
			}

			a, err := openApp(cmd, root, openOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.project.AssignPipeline(a.ctx, ids[0], pipelineID); err != nil {
				return newCommandError("assign pipeline", fmt.Sprintf("assigning pipeline %d to page %d", pipelineID, ids[0]), err, "")
			}
			if err := a.project.Save(); err != nil {
				return newCommandError("assign pipeline", "saving the project", err, "Check file permissions and disk space.")
			}
			page, _ := a.project.Page(ids[0])
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Page %d now runs %s\n", page.ID(), pipelineName(a.project.Pipelines(), page.PipelineID()))
			return nil
		},
	}
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid page id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// relativeTo expresses path relative to dir when it lies below it, so
// project files stay portable.
func relativeTo(dir, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}
