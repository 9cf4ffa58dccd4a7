package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage adminctl profiles"}
	cmd.AddCommand(newConfigUseCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigRemoveCmd())
	return cmd
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Set active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			prof := args[0]
			if _, ok := cfg.Profiles[prof]; !ok {
				return fmt.Errorf("profile %q not found", prof)
			}
			cfg.Active = prof
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %q\n", prof)
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			type row struct {
				Name   string `json:"name"`
				APIURL string `json:"apiUrl"`
				Active bool   `json:"active"`
			}
			var rows []row
			tbl := &table{header: []string{"", "Profile", "API URL"}}
			for _, name := range cfg.Names() {
				r := row{Name: name, APIURL: cfg.Profiles[name].APIURL, Active: name == cfg.Active}
				rows = append(rows, r)
				mark := ""
				if r.Active {
					mark = "*"
				}
				tbl.rows = append(tbl.rows, []string{mark, name, r.APIURL})
			}
			return printOutput(cmd, rows, tbl)
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			p := cfg.Profiles[cfg.Active]
			v := struct {
				Active      string `json:"active"`
				APIURL      string `json:"apiUrl"`
				Insecure    bool   `json:"insecure"`
				HasToken    bool   `json:"hasToken"`
				HasDSN      bool   `json:"hasDsn"`
				TablePrefix string `json:"tablePrefix,omitempty"`
				Site        string `json:"site,omitempty"`
			}{cfg.Active, p.APIURL, p.Insecure, p.Token != "", p.DSN != "", p.TablePrefix, p.Site}
			tbl := &table{
				header: []string{"Profile", "API URL", "Insecure", "Token", "DSN", "Prefix", "Site"},
				rows: [][]string{{v.Active, v.APIURL, strconv.FormatBool(v.Insecure), strconv.FormatBool(v.HasToken),
					strconv.FormatBool(v.HasDSN), v.TablePrefix, v.Site}},
			}
			return printOutput(cmd, v, tbl)
		},
	}
}

// newConfigSetCmd edits one key of the selected profile, creating it if needed.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a profile key (api-url, token, insecure, dsn, table-prefix, site)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			name, _ := cmd.Root().PersistentFlags().GetString("profile")
			if name == "" {
				name = cfg.Active
			}
			p := cfg.Profiles[name]
			p.Name = name
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			cfg.Profiles[name] = p
			if err := config.Save(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s on profile %q\n", args[0], name)
			return nil
		},
	}
}

func newConfigRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <profile>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if _, ok := cfg.Profiles[args[0]]; !ok {
				return fmt.Errorf("profile %q not found", args[0])
			}
			delete(cfg.Profiles, args[0])
			if cfg.Active == args[0] {
				cfg.Active = "default"
			}
			return config.Save(cfg)
		},
	}
}
