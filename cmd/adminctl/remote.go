package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/faciam-dev/gcadmin/pkg/config"
	"github.com/faciam-dev/gcadmin/sdk/client"
)

func apiClient(cmd *cobra.Command) (*client.Client, error) {
	r, err := config.Resolve(cmd)
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithToken(r.Token)}
	if r.Insecure {
		opts = append(opts, client.WithInsecure())
	}
	return client.New(r.APIURL, opts...), nil
}

// splitModel parses "app.model".
func splitModel(s string) (string, string, error) {
	app, model, ok := strings.Cut(s, ".")
	if !ok || app == "" || model == "" {
		return "", "", fmt.Errorf("model must be app.model, got %q", s)
	}
	return app, model, nil
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			models, err := c.Models(cmd.Context())
			if err != nil {
				return err
			}
			tbl := &table{header: []string{"Model", "Name", "PK"}}
			for _, m := range models {
				tbl.rows = append(tbl.rows, []string{m.App + "." + m.Model, m.VerboseNamePlural, m.PK})
			}
			return printOutput(cmd, models, tbl)
		},
	}
}

func newSchemaCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "schema <app.model>",
		Short: "Print the form schema of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			s, err := c.Schema(cmd.Context(), app, model, id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "render the edit form of this object")
	return cmd
}

func newFiltersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters <app.model>",
		Short: "List the filters of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			f, err := c.Filters(cmd.Context(), app, model)
			if err != nil {
				return err
			}
			tbl := &table{header: []string{"Path", "Label", "Kind", "Class", "Operators"}}
			for _, d := range f.Filters {
				tbl.rows = append(tbl.rows, []string{d.Path, d.Label, d.Kind, d.Class, join(d.Operators)})
			}
			return printOutput(cmd, f, tbl)
		},
	}
}

func newListCmd() *cobra.Command {
	var search, order string
	var limit, offset int
	var filters []string
	cmd := &cobra.Command{
		Use:   "list <app.model>",
		Short: "List objects, e.g. list blog.post -f status=live -f views.gte=10",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			q, err := filterValues(filters)
			if err != nil {
				return err
			}
			if search != "" {
				q.Set("q", search)
			}
			if order != "" {
				q.Set("o", order)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			page, err := c.List(cmd.Context(), app, model, q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter as path[.op]=value")
	cmd.Flags().StringVarP(&search, "search", "q", "", "search text")
	cmd.Flags().StringVarP(&order, "order", "o", "", "comma separated ordering, '-' for descending")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

// filterPrefix marks filter parameters in list queries.
const filterPrefix = "f_"

func filterValues(filters []string) (url.Values, error) {
	q := url.Values{}
	for _, f := range filters {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad filter %q", f)
		}
		q.Add(filterPrefix+k, v)
	}
	return q, nil
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <app.model>",
		Short: "List the actions you may run on a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			acts, err := c.Actions(cmd.Context(), app, model)
			if err != nil {
				return err
			}
			tbl := &table{header: []string{"Name", "Label", "Scopes", "Danger", "Permission"}}
			for _, a := range acts {
				tbl.rows = append(tbl.rows, []string{a.Name, a.Label, join(a.Scopes), strconv.FormatBool(a.Danger), a.RequiredPerm})
			}
			return printOutput(cmd, acts, tbl)
		},
	}
}

func newRunCmd() *cobra.Command {
	var ids, filters []string
	var search, scopeToken, params string
	cmd := &cobra.Command{
		Use:   "run <app.model> <action>",
		Short: "Run an action over ids, a filter scope or a scope token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			req := client.RunRequest{ScopeToken: scopeToken}
			for _, id := range ids {
				req.IDs = append(req.IDs, parseID(id))
			}
			if len(filters) > 0 || search != "" {
				sc := &client.Scope{Search: search, Filters: map[string]any{}}
				for _, f := range filters {
					k, v, ok := strings.Cut(f, "=")
					if !ok || k == "" {
						return fmt.Errorf("bad filter %q", f)
					}
					sc.Filters[k] = v
				}
				req.Scope = sc
			}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &req.Params); err != nil {
					return fmt.Errorf("--params: %w", err)
				}
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			out, err := c.Run(cmd.Context(), app, model, args[1], req)
			if err != nil {
				return err
			}
			if out.Background {
				fmt.Fprintf(cmd.OutOrStdout(), "queued job %s over %d rows\n", out.JobID, out.Total)
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "object ids")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter as path[.op]=value")
	cmd.Flags().StringVarP(&search, "search", "q", "", "search text")
	cmd.Flags().StringVar(&scopeToken, "scope-token", "", "signed scope token")
	cmd.Flags().StringVar(&params, "params", "", "action parameters as JSON")
	return cmd
}

// parseID keeps integer ids numeric so they match integer primary keys.
func parseID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func newScopeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "scope", Short: "Sign and verify scope tokens"}
	cmd.AddCommand(newScopeSignCmd())
	cmd.AddCommand(newScopeVerifyCmd())
	return cmd
}

func newScopeSignCmd() *cobra.Command {
	var filters []string
	var search string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "sign <app.model>",
		Short: "Sign a filter scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, model, err := splitModel(args[0])
			if err != nil {
				return err
			}
			sc := client.Scope{Search: search}
			if len(filters) > 0 {
				sc.Filters = map[string]any{}
				for _, f := range filters {
					k, v, ok := strings.Cut(f, "=")
					if !ok || k == "" {
						return fmt.Errorf("bad filter %q", f)
					}
					sc.Filters[k] = v
				}
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			tok, err := c.SignScope(cmd.Context(), app, model, sc, ttl)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tok)
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter as path[.op]=value")
	cmd.Flags().StringVarP(&search, "search", "q", "", "search text")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime")
	return cmd
}

func newScopeVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a scope token and print its scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			v, err := c.VerifyScope(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
}
