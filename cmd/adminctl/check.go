package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/pkg/config"
	"github.com/faciam-dev/gcadmin/sdk"
)

// readSite reads --site, falling back to the profile's site file.
func readSite(cmd *cobra.Command, path string) ([]byte, error) {
	path = config.SitePath(cmd, path, "site.yaml")
	if path == "" {
		return nil, fmt.Errorf("--site is required")
	}
	return os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path cleaned
}

func newCheckCmd() *cobra.Command {
	var site, widgetDir, reservedFile, prefix string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a site definition offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSite(cmd, site)
			if err != nil {
				return err
			}
			svc := sdk.New(sdk.ServiceConfig{
				Logger:       newLogger(cmd),
				TablePrefix:  prefix,
				WidgetDir:    widgetDir,
				ReservedFile: reservedFile,
			})
			rep, err := svc.Check(cmd.Context(), data)
			if err != nil {
				return err
			}
			tbl := &table{header: []string{"Model", "Table", "Fields", "Filters", "Actions"}}
			for _, m := range rep.Models {
				tbl.rows = append(tbl.rows, []string{m.Model, m.Table, strconv.Itoa(m.Fields), join(m.Filters), join(m.Actions)})
			}
			return printOutput(cmd, rep, tbl)
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site definition YAML (default: profile site, then site.yaml)")
	cmd.Flags().StringVar(&widgetDir, "widgets", "", "widget alias directory")
	cmd.Flags().StringVar(&reservedFile, "reserved", "", "reserved table patterns YAML")
	cmd.Flags().StringVar(&prefix, "table-prefix", "", "engine table prefix")
	return cmd
}
