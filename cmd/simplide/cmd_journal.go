package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"simplide/internal/journal"
)

var (
	journalCmd = &cobra.Command{
		Use:   "journal",
		Short: "Inspect editing sessions left in the journal",
	}

	journalListCmd = &cobra.Command{
		Use:   "list",
		Short: "List unsaved sessions",
		Args:  cobra.NoArgs,
		RunE: withJournal(func(cmd *cobra.Command, j *journal.Journal, _ []string) error {
			sessions, err := j.Sessions()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tURI\tBASE\tEDITS\tCREATED")
			for _, s := range sessions {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					s.ID, s.URI, s.BaseVersion, s.Edits, s.Created.Local().Format(time.DateTime))
			}
			return w.Flush()
		}),
	}

	journalShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Print the recovered text of a session",
		Args:  cobra.ExactArgs(1),
		RunE: withJournal(func(cmd *cobra.Command, j *journal.Journal, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			rec, err := j.Recover(id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), rec.Text)
			return err
		}),
	}

	journalDiscardCmd = &cobra.Command{
		Use:   "discard ID",
		Short: "Drop a session and its edits",
		Args:  cobra.ExactArgs(1),
		RunE: withJournal(func(cmd *cobra.Command, j *journal.Journal, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}
			return j.Discard(id)
		}),
	}
)

func init() {
	journalCmd.AddCommand(journalListCmd, journalShowCmd, journalDiscardCmd)
}

func withJournal(fn func(*cobra.Command, *journal.Journal, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, err := cfg.JournalPath()
		if err != nil {
			return err
		}
		j, err := journal.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		return fn(cmd, j, args)
	}
}
