package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/engine"
	"github.com/alexisbeaulieu97/diva/internal/infrastructure/host"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	"github.com/alexisbeaulieu97/diva/internal/project"
	"github.com/alexisbeaulieu97/diva/internal/tui"
)

type processOptions struct {
	page    int
	plain   bool
	timings bool
}

func newProcessCmd(root *rootFlags) *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run the pipelines of project pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, opts)
		},
	}

	cmd.Flags().IntVar(&opts.page, "page", -1, "Process only this page id")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable the terminal UI")
	cmd.Flags().BoolVar(&opts.timings, "timings", false, "Print how long every processor took")

	return cmd
}

func runProcess(cmd *cobra.Command, root *rootFlags, opts *processOptions) error {
	interactive := !opts.plain && isTerminal(cmd.OutOrStdout())

	a, err := openApp(cmd, root, openOptions{logToFile: interactive})
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pages("process", opts.page)
	if err != nil {
		return err
	}

	timings := engine.NewTimingLogger()
	var batch *engine.BatchResult
	if interactive {
		batch, err = processInteractive(cmd, a, pages, timings)
	} else {
		batch, err = processPlain(a, pages, timings)
		if batch != nil {
			if werr := writeBatch(cmd.OutOrStdout(), pageNames(a.project), batch); werr != nil {
				return werr
			}
		}
	}
	if opts.timings {
		if werr := writeTimings(cmd.OutOrStdout(), timings); werr != nil {
			return werr
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return newCommandError("process", "running pipelines", err, "Run 'diva process' again to resume; finished processors are skipped.")
	case err != nil:
		return newCommandError("process", "running pipelines", err, "Run 'diva status' to inspect processor states.")
	}
	return nil
}

func processPlain(a *appContext, pages []*project.Page, timings *engine.TimingLogger) (*engine.BatchResult, error) {
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt)
	defer stop()

	svc, err := a.service(a.plainHost())
	if err != nil {
		return nil, err
	}

	return svc.ProcessPages(ctx, pages, timings).Wait()
}

func processInteractive(cmd *cobra.Command, a *appContext, pages []*project.Page, timings *engine.TimingLogger) (*engine.BatchResult, error) {
	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	infos := make([]tui.PageInfo, len(pages))
	for i, p := range pages {
		infos[i] = tui.PageInfo{ID: p.ID(), Name: p.Name()}
	}
	program := tea.NewProgram(
		tui.NewModel(a.project.Name(), infos, cancel),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	reporter := tui.NewReporter(program)
	defer reporter.Close()

	svc, err := a.service(ports.Host{
		Status: reporter,
		Errors: reporter,
		UI:     reporter,
		Busy:   &host.Busy{},
	})
	if err != nil {
		return nil, err
	}

	task := svc.ProcessPages(ctx, pages, multiLogger{reporter, timings})
	go func() {
		batch, err := task.Wait()
		reporter.Done(batch, err)
	}()

	_, runErr := program.Run()
	reporter.Detach()
	// The program also ends on a forced quit; make sure the batch stops.
	cancel()
	batch, err := task.Wait()
	if runErr != nil {
		return batch, runErr
	}
	return batch, err
}

// multiLogger fans execution callbacks out to several loggers.
type multiLogger []engine.ExecutionLogger

func (m multiLogger) PageStarted(pageID int, pipeline string) {
	for _, l := range m {
		l.PageStarted(pageID, pipeline)
	}
}

func (m multiLogger) ProcessorStarted(pageID int, nodeID, service string) {
	for _, l := range m {
		l.ProcessorStarted(pageID, nodeID, service)
	}
}

func (m multiLogger) ProcessorFinished(pageID int, result engine.ProcessorResult) {
	for _, l := range m {
		l.ProcessorFinished(pageID, result)
	}
}

func (m multiLogger) PageFinished(result *engine.PageResult) {
	for _, l := range m {
		l.PageFinished(result)
	}
}

func pageNames(p *project.Project) func(int) string {
	return func(id int) string {
		if page, ok := p.Page(id); ok {
			return page.Name()
		}
		return ""
	}
}

func writeBatch(w io.Writer, name func(int) string, batch *engine.BatchResult) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PAGE\tNAME\tPIPELINE\tOUTCOME\tPROCESSORS\tDURATION")
	for _, r := range batch.Pages {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%d ran, %d skipped\t%s\n",
			r.PageID, valueOrFallback(name(r.PageID), "-"), valueOrFallback(r.Pipeline, "-"), tui.OutcomeLabel(r.Outcome),
			r.Count(engine.OutcomeSucceeded)+r.Count(engine.OutcomeFailed), r.Count(engine.OutcomeSkipped),
			r.Duration.Truncate(time.Millisecond))
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d succeeded, %d failed, %d cancelled in %s\n",
		batch.Count(engine.OutcomeSucceeded), batch.Count(engine.OutcomeFailed), batch.Count(engine.OutcomeCancelled),
		batch.Duration.Truncate(time.Millisecond))
	return err
}

func writeTimings(w io.Writer, timings *engine.TimingLogger) error {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PAGE\tPROCESSOR\tSERVICE\tOUTCOME\tDURATION")
	for _, e := range timings.Entries() {
		if e.NodeID == "" {
			continue
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\n", e.PageID, e.NodeID, e.Service, e.Outcome, e.Duration.Truncate(time.Microsecond))
	}
	fmt.Fprintf(writer, "\t\t\ttotal\t%s\n", timings.Total().Truncate(time.Microsecond))
	return writer.Flush()
}
