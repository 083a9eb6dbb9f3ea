// Package cli implements the toolctl command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the toolctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "toolctl",
		Short: "Tool server registry and dispatcher for voice agents",
		Long: "toolctl keeps a registry of backend tool servers, discovers their tools, " +
			"and dispatches calls, polling asynchronous jobs until their real result is ready.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate("toolctl version {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to toolctl.yaml (default: ./toolctl.yaml or ~/.toolctl/toolctl.yaml)")
	flags.String("store", "", "Server store driver: sqlite | postgres | file | memory")
	flags.String("store-dsn", "", "Store DSN or file path (default depends on driver)")
	flags.String("scope", "", "Only use servers in this scope")
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all log output except errors")
	flags.String("log-format", "", "Log format: text | json")

	root.AddCommand(NewServersCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewHealthCmd())
	root.AddCommand(NewServeCmd(version))
	return root
}
