package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// table is a header plus rows rendered by printOutput in table mode.
type table struct {
	header []string
	rows   [][]string
}

// printOutput prints v as JSON, or tbl when --output is table.
func printOutput(cmd *cobra.Command, v any, tbl *table) error {
	format, _ := cmd.Root().PersistentFlags().GetString("output")
	w := cmd.OutOrStdout()
	if format == "json" || tbl == nil {
		return writeJSON(w, v)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(tbl.header)
	tw.SetAutoWrapText(false)
	tw.AppendBulk(tbl.rows)
	tw.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func join(ss []string) string { return strings.Join(ss, ",") }

func newLogger(cmd *cobra.Command) *zap.SugaredLogger {
	if v, _ := cmd.Root().PersistentFlags().GetBool("verbose"); v {
		l, err := zap.NewDevelopment()
		if err == nil {
			return l.Sugar()
		}
	}
	return zap.NewNop().Sugar()
}
