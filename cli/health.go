package cli

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// NewHealthCmd creates the "health" subcommand.
func NewHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe every server that contributes tools",
		Long: "Health is advisory: an unhealthy server keeps its tools registered and " +
			"calls are still attempted.",
		Args: cobra.NoArgs,
		RunE: runHealth,
	}
	cmd.Flags().Bool("cached", false, "Print the last cached results instead of probing")
	cmd.Flags().Bool("json", false, "Print results as JSON")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := e.newDispatcher(nil)
	if err != nil {
		return err
	}
	defer d.Close(cmd.Context())

	var results map[int64]tool.HealthStatus
	if cached, _ := cmd.Flags().GetBool("cached"); cached {
		results, err = d.HealthSnapshot(cmd.Context())
		if err != nil {
			return exitError(exitRuntime, "reading health cache: %v", err)
		}
	} else {
		if _, err := e.initialize(cmd, d); err != nil {
			return err
		}
		results = d.HealthCheckAll(cmd.Context())
	}

	ids := slices.Sorted(maps.Keys(results))
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		ordered := make([]tool.HealthStatus, 0, len(ids))
		for _, id := range ids {
			ordered = append(ordered, results[id])
		}
		data, err := json.MarshalIndent(ordered, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding health: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "SERVER_ID\tNAME\tPROTOCOL\tHEALTHY\tLATENCY_MS\tERROR")
	for _, id := range ids {
		status := results[id]
		detail := status.Error
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\t%t\t%d\t%s\n",
			status.ServerID,
			status.Name,
			status.Protocol,
			status.Healthy,
			status.LatencyMS,
			detail,
		)
	}
	return writer.Flush()
}
