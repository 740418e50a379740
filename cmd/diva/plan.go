package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/engine"
)

func newPlanCmd(root *rootFlags) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the execution levels of page pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, root, page)
		},
	}

	cmd.Flags().IntVar(&page, "page", -1, "Plan only this page id")

	return cmd
}

func runPlan(cmd *cobra.Command, root *rootFlags, pageID int) error {
	a, err := openApp(cmd, root, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pages("plan", pageID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, page := range pages {
		pl, err := page.OpenReadOnly(a.ctx)
		if err != nil {
			return newCommandError("plan", fmt.Sprintf("opening the pipeline of page %d", page.ID()), err, "")
		}
		graph, err := engine.BuildDAG(pl)
		if err == nil {
			var plan *engine.ExecutionPlan
			plan, err = engine.GeneratePlan(pl.Name(), graph)
			if err == nil {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "Page %d (%s): pipeline %s, %d of %d processors pending, state %s\n",
					page.ID(), page.Name(), pl.Name(), plan.Pending(), len(graph.Nodes), pl.State().Label())
				fmt.Fprint(out, plan.String())
			}
		}
		pl.Close()
		if err != nil {
			return newCommandError("plan", fmt.Sprintf("planning page %d", page.ID()), err, "")
		}
	}
	return nil
}
