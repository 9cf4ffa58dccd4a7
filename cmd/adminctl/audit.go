package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Inspect and maintain the audit tables"}
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newRecountCmd())
	cmd.AddCommand(newPruneCmd())
	return cmd
}

func (f *dbFlags) recorder(cmd *cobra.Command) (*audit.Recorder, func(), error) {
	db, err := f.open(cmd)
	if err != nil {
		return nil, nil, err
	}
	return &audit.Recorder{DB: db, Driver: f.Driver, TablePrefix: f.TablePrefix}, func() { _ = db.Close() }, nil
}

func newHistoryCmd() *cobra.Command {
	var flags dbFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "history <app.model> <pk>",
		Short: "Show the change history of one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := descriptor.ParseModelID(args[0])
			if err != nil {
				return err
			}
			rec, closeDB, err := flags.recorder(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			entries, err := rec.History(cmd.Context(), id, args[1], limit)
			if err != nil {
				return err
			}
			tbl := &table{header: []string{"ID", "When", "Actor", "Action", "+", "-"}}
			for _, e := range entries {
				tbl.rows = append(tbl.rows, []string{
					strconv.FormatInt(e.ID, 10), e.AppliedAt.Format(time.RFC3339), e.Actor, e.Action,
					strconv.Itoa(e.Added), strconv.Itoa(e.Removed),
				})
			}
			return printOutput(cmd, entries, tbl)
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	return cmd
}

func newRecountCmd() *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "recount",
		Short: "Recompute change counts of audit rows stored without them",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, closeDB, err := flags.recorder(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			n, err := rec.Recount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d rows\n", n)
			return nil
		},
	}
	flags.addFlags(cmd)
	return cmd
}

func newPruneCmd() *cobra.Command {
	var flags dbFlags
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old action runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			rec, closeDB, err := flags.recorder(cmd)
			if err != nil {
				return err
			}
			defer closeDB()
			n, err := rec.PruneRuns(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d action runs\n", n)
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of runs to delete")
	return cmd
}
