package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "adminctl", Short: "Manage admin sites and talk to the admin API"}

func init() {
	rootCmd.PersistentFlags().String("api-url", "", "Admin API base URL")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for Admin API")
	rootCmd.PersistentFlags().String("profile", "", "Profile name in config (overrides active)")
	rootCmd.PersistentFlags().String("output", "table", "Output format (table|json)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose logging")

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newDBCmd())
	rootCmd.AddCommand(newRBACCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newModelsCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newFiltersCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newScopeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
