package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/internal/rbac"
)

func newRBACCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "Edit persisted roles and permissions"}
	cmd.AddCommand(grantCmd("grant <role> <perm>", "Grant a permission to a role", (*rbac.Grants).GrantPerm))
	cmd.AddCommand(grantCmd("revoke <role> <perm>", "Revoke a permission from a role", (*rbac.Grants).RevokePerm))
	cmd.AddCommand(grantCmd("assign <user> <role>", "Assign a role to a user", (*rbac.Grants).AssignRole))
	cmd.AddCommand(grantCmd("unassign <user> <role>", "Remove a role from a user", (*rbac.Grants).UnassignRole))
	cmd.AddCommand(newRBACListCmd())
	return cmd
}

func grantCmd(use, short string, fn func(*rbac.Grants, context.Context, string, string) error) *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			g := &rbac.Grants{DB: db, Driver: flags.Driver, Prefix: flags.TablePrefix}
			if err := fn(g, cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	flags.addFlags(cmd)
	return cmd
}

func newRBACListCmd() *cobra.Command {
	var flags dbFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List role permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			g := &rbac.Grants{DB: db, Driver: flags.Driver, Prefix: flags.TablePrefix}
			perms, err := g.RolePerms(cmd.Context())
			if err != nil {
				return err
			}
			roles := make([]string, 0, len(perms))
			for r := range perms {
				roles = append(roles, r)
			}
			slices.Sort(roles)
			tbl := &table{header: []string{"Role", "Permissions"}}
			for _, r := range roles {
				tbl.rows = append(tbl.rows, []string{r, join(perms[r])})
			}
			return printOutput(cmd, perms, tbl)
		},
	}
	flags.addFlags(cmd)
	return cmd
}
