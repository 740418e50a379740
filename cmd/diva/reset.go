package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/ports"
)

type resetOptions struct {
	page int
	yes  bool
}

func newResetCmd(root *rootFlags) *cobra.Command {
	opts := &resetOptions{}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the persisted processor outputs of project pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", -1, "Reset only this page id")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Reset without confirmation")

	return cmd
}

func runReset(cmd *cobra.Command, root *rootFlags, opts *resetOptions) error {
	confirm, err := confirmerFor(cmd, "reset", opts.yes)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, root, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pages("reset", opts.page)
	if err != nil {
		return err
	}

	if confirm.Confirm(fmt.Sprintf("Reset %d page(s)? Their processor outputs will be deleted.", len(pages))) != ports.AnswerYes {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return nil
	}

	svc, err := a.service(a.plainHost())
	if err != nil {
		return err
	}

	n, err := svc.ResetPages(a.ctx, pages).Wait()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset %d of %d page(s)\n", n, len(pages))
	if err != nil {
		return newCommandError("reset", "deleting processor outputs", err, "Retry once no other diva process is running on these pages.")
	}
	return nil
}
