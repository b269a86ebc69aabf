package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"simplide/internal/buffer"
	"simplide/internal/manager"
)

var (
	highlightFrom int
	highlightTo   int

	highlightCmd = &cobra.Command{
		Use:   "highlight FILE",
		Short: "Print the highlight spans of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runHighlight,
	}
)

func init() {
	highlightCmd.Flags().IntVar(&highlightFrom, "from", 0, "first byte offset")
	highlightCmd.Flags().IntVar(&highlightTo, "to", -1, "end byte offset (default end of file)")
}

func runHighlight(cmd *cobra.Command, args []string) error {
	local := cfg
	local.Analyzers = nil
	m, err := manager.New(manager.Options{Config: local})
	if err != nil {
		return err
	}
	defer m.CloseAll(context.Background())

	c, err := m.Open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	r := buffer.Range{Start: highlightFrom, End: highlightTo}
	if r.End < 0 || r.End > c.Len() {
		r.End = c.Len()
	}
	if r.Start < 0 || r.Start > r.End {
		return fmt.Errorf("%w: %s", buffer.ErrOutOfBounds, r)
	}

	view := c.Highlights(r)
	if view.Err != nil {
		return view.Err
	}
	w := cmd.OutOrStdout()
	for span := range view.Spans {
		pos, err := c.PositionAt(span.Range.Start)
		if err != nil {
			return err
		}
		text, err := c.Read(span.Range)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d:%d\t%s\t%q\n", pos.Line+1, pos.Column+1, span.Category, text)
	}
	return nil
}
