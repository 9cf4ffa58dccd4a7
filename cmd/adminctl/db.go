package main

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/internal/config"
	profiles "github.com/faciam-dev/gcadmin/pkg/config"
	"github.com/faciam-dev/gcadmin/pkg/util"
	"github.com/faciam-dev/gcadmin/sdk"
)

// dbFlags defines common database flags.
type dbFlags struct {
	Driver      string
	DSN         string
	TablePrefix string
}

func (f *dbFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.DSN, "db", util.GetEnv("ADMIN_DSN", ""), "database DSN")
	cmd.Flags().StringVar(&f.Driver, "driver", "", "database driver (postgres or mysql)")
	cmd.Flags().StringVar(&f.TablePrefix, "table-prefix", util.GetEnv("TABLE_PREFIX", config.DefaultTablePrefix), "engine table prefix")
}

// resolve fills the DSN and table prefix from the profile when the flags
// leave them unset, then settles the driver.
func (f *dbFlags) resolve(cmd *cobra.Command) error {
	db, err := profiles.ResolveDB(cmd, f.DSN, f.TablePrefix, cmd.Flags().Changed("table-prefix"))
	if err != nil {
		return err
	}
	f.DSN, f.TablePrefix = db.DSN, db.TablePrefix
	f.Driver, err = util.ResolveDriver(f.Driver, f.DSN)
	return err
}

func (f *dbFlags) open(cmd *cobra.Command) (*sql.DB, error) {
	if err := f.resolve(cmd); err != nil {
		return nil, err
	}
	dsn, err := util.DriverDSN(f.Driver, f.DSN)
	if err != nil {
		return nil, err
	}
	return sql.Open(f.Driver, dsn)
}

func (f *dbFlags) service(cmd *cobra.Command, db *sql.DB) sdk.Service {
	return sdk.New(sdk.ServiceConfig{Logger: newLogger(cmd), DB: db, Driver: f.Driver, TablePrefix: f.TablePrefix})
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "db", Short: "Database operations"}
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDDLCmd())
	cmd.AddCommand(newCreateTablesCmd())
	cmd.AddCommand(newMissingCmd())
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var flags dbFlags
	var to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the engine tables to a schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			svc := flags.service(cmd, db)
			if err := svc.Migrate(cmd.Context(), to); err != nil {
				return err
			}
			v, err := svc.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "engine schema at %s\n", v)
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&to, "to", "latest", "target schema version (semver or latest)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the applied engine schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			v, err := flags.service(cmd, db).Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	flags.addFlags(cmd)
	return cmd
}

func newDDLCmd() *cobra.Command {
	var flags dbFlags
	var site string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print CREATE TABLE statements for the site's models",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSite(cmd, site)
			if err != nil {
				return err
			}
			// DDL only needs the dialect; --driver alone is enough.
			if err := flags.resolve(cmd); err != nil && (flags.Driver == "" || flags.DSN != "") {
				return err
			}
			db, err := sql.Open(flags.Driver, "")
			if err != nil {
				return err
			}
			defer db.Close()
			stmts, err := flags.service(cmd, db).DDL(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(stmts, ";\n")+";")
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&site, "site", "", "site definition YAML (default: profile site, then site.yaml)")
	return cmd
}

func newCreateTablesCmd() *cobra.Command {
	var flags dbFlags
	var site string
	cmd := &cobra.Command{
		Use:   "create-tables",
		Short: "Create missing model tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSite(cmd, site)
			if err != nil {
				return err
			}
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := flags.service(cmd, db).CreateTables(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&site, "site", "", "site definition YAML (default: profile site, then site.yaml)")
	return cmd
}

func newMissingCmd() *cobra.Command {
	var flags dbFlags
	var site string
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List model tables absent from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSite(cmd, site)
			if err != nil {
				return err
			}
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			missing, err := flags.service(cmd, db).MissingTables(cmd.Context(), data)
			if err != nil {
				return err
			}
			if len(missing) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "all tables present")
				return nil
			}
			for _, t := range missing {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return fmt.Errorf("%d missing tables", len(missing))
		},
	}
	flags.addFlags(cmd)
	cmd.Flags().StringVar(&site, "site", "", "site definition YAML (default: profile site, then site.yaml)")
	return cmd
}
