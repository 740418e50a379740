package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/pipeline"
	"github.com/alexisbeaulieu97/diva/internal/project"
)

type statusOptions struct {
	page       int
	jsonOutput bool
}

func newStatusCmd(root *rootFlags) *cobra.Command {
	opts := &statusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the processing state of project pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", -1, "Show only this page id")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

type pageStatus struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Image    string            `json:"image"`
	Pipeline string            `json:"pipeline"`
	State    string            `json:"state"`
	Stages   map[string]string `json:"stages,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type statusJSONPayload struct {
	Version string       `json:"version"`
	Project string       `json:"project"`
	Count   int          `json:"count"`
	Pages   []pageStatus `json:"pages"`
}

func runStatus(cmd *cobra.Command, root *rootFlags, opts *statusOptions) error {
	a, err := openApp(cmd, root, openOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pages("status", opts.page)
	if err != nil {
		return err
	}

	statuses := make([]pageStatus, 0, len(pages))
	for _, page := range pages {
		statuses = append(statuses, collectStatus(a, page))
	}

	if opts.jsonOutput {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(statusJSONPayload{
			Version: "1.0",
			Project: a.project.Name(),
			Count:   len(statuses),
			Pages:   statuses,
		})
	}
	return renderStatusTable(cmd.OutOrStdout(), statuses)
}

func collectStatus(a *appContext, page *project.Page) pageStatus {
	s := pageStatus{
		ID:       page.ID(),
		Name:     page.Name(),
		Image:    page.Image(),
		Pipeline: pipelineName(a.project.Pipelines(), page.PipelineID()),
	}
	state, stages, err := page.State(a.ctx)
	s.State = state.Label()
	if err != nil {
		s.Error = err.Error()
	}
	if len(stages) > 0 {
		s.Stages = make(map[string]string, len(stages))
		for name, st := range stages {
			s.Stages[name] = st.Label()
		}
	}
	return s
}

func renderStatusTable(w io.Writer, statuses []pageStatus) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tPIPELINE\tSTATE\tSTAGES")
	for _, s := range statuses {
		state := s.State
		if s.Error != "" {
			state += " (" + s.Error + ")"
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Pipeline, state, formatStages(s.Stages))
	}
	return writer.Flush()
}

func formatStages(stages map[string]string) string {
	if len(stages) == 0 {
		return "-"
	}
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + stages[name]
	}
	return strings.Join(parts, ", ")
}

func pipelineName(defs []pipeline.Definition, id int) string {
	for _, def := range defs {
		if def.ID == id {
			return valueOrFallback(def.Name, fmt.Sprintf("#%d", id))
		}
	}
	return "-"
}
