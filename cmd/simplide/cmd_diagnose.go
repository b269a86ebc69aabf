package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"simplide/internal/buffer"
	"simplide/internal/grammar"
	"simplide/internal/lsp"
	"simplide/internal/manager"
)

var (
	diagnoseTimeout time.Duration

	diagnoseCmd = &cobra.Command{
		Use:   "diagnose FILE",
		Short: "Open a file with its analyzer and print the diagnostics",
		Long: `Opens FILE the way the editor would, attaches the analyzer configured
for its language, or the builtin one when none is, and prints the diagnostics
published for the file. Exits non-zero when there are any.`,
		Args: cobra.ExactArgs(1),
		RunE: runDiagnose,
	}
)

func init() {
	diagnoseCmd.Flags().DurationVar(&diagnoseTimeout, "timeout", 10*time.Second, "how long to wait for the analyzer")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	m, err := manager.New(manager.Options{
		Config: cfg,
		Dialer: func(g *grammar.Grammar) lsp.Dialer {
			return lsp.CommandDialer{Command: []string{self, "analyzer"}, Stderr: os.Stderr}
		},
	})
	if err != nil {
		return err
	}
	defer m.CloseAll(context.Background())

	c, err := m.Open(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), diagnoseTimeout)
	defer cancel()
	for {
		if v, ok := c.DiagnosticsVersion(); ok && v == c.Version() {
			break
		}
		if c.AnalyzerState() == lsp.Degraded {
			return fmt.Errorf("%s: %w", args[0], lsp.ErrDegraded)
		}
		if err := c.Next(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%s: no diagnostics within %s", args[0], diagnoseTimeout)
			}
			return err
		}
	}

	w := cmd.OutOrStdout()
	n := 0
	for d := range c.Diagnostics(buffer.Range{Start: 0, End: c.Len()}) {
		pos, err := c.PositionAt(d.Range.Start)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s:%d:%d: %s: %s", args[0], pos.Line+1, pos.Column+1, severity(d.Severity), d.Message)
		if d.Source != "" {
			fmt.Fprintf(w, " (%s)", d.Source)
		}
		fmt.Fprintln(w)
		n++
	}
	if n > 0 {
		return fmt.Errorf("%d problems in %s", n, args[0])
	}
	return nil
}

func severity(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	}
	return "problem"
}
