package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/diva/internal/infrastructure/host"
	"github.com/alexisbeaulieu97/diva/internal/ports"
)

// promptConfirmer asks on the command's streams.
type promptConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (p promptConfirmer) Confirm(message string) ports.Answer {
	_, _ = fmt.Fprintf(p.out, "%s [y/N/c]: ", message)

	scanner := bufio.NewScanner(p.in)
	if !scanner.Scan() {
		return ports.AnswerCancel
	}
	switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
	case "y", "yes":
		return ports.AnswerYes
	case "c", "cancel":
		return ports.AnswerCancel
	default:
		return ports.AnswerNo
	}
}

func confirmerFor(cmd *cobra.Command, operation string, yes bool) (ports.Confirmer, error) {
	if yes {
		return host.FixedAnswer(ports.AnswerYes), nil
	}
	if !isTerminal(cmd.InOrStdin()) {
		return nil, newCommandError(operation, "prompting for confirmation", errors.New("not a terminal"), "Use --yes when running in non-interactive environments.")
	}
	return promptConfirmer{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}, nil
}
