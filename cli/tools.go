package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Discover and call tools",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover tools on active servers and print the manifest",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
	cmd.Flags().Bool("json", false, "Print the manifest as JSON")
	return cmd
}

func runToolsList(cmd *cobra.Command, _ []string) error {
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

	report, err := e.initialize(cmd, d)
	if err != nil {
		return err
	}
	for _, resolution := range report.Resolutions {
		fmt.Fprintf(cmd.ErrOrStderr(), "Renamed %s on %s to %s\n", resolution.Original, resolution.Server, resolution.Resolved)
	}

	manifest := d.GetAvailableTools()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding manifest: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tSERVER\tPROTOCOL\tPARAMS")
	for _, entry := range manifest {
		names := make([]string, 0, len(entry.Parameters))
		for _, param := range entry.Parameters {
			if param.Required {
				names = append(names, param.Name+"*")
				continue
			}
			names = append(names, param.Name)
		}
		params := strings.Join(names, ",")
		if params == "" {
			params = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", entry.Name, entry.Server, entry.Protocol, params)
	}
	return writer.Flush()
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Call a tool and wait for its result",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsCall,
	}
	cmd.Flags().StringArray("param", nil, "Tool parameter KEY=VALUE (repeatable)")
	cmd.Flags().String("params-json", "", "Tool parameters as a JSON object")
	cmd.Flags().Duration("timeout", 0, "Call timeout (default: the server's timeout)")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	params, err := parseCallParams(cmd)
	if err != nil {
		return exitError(exitInputParse, "invalid parameters: %v", err)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

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

	if _, err := e.initialize(cmd, d); err != nil {
		return err
	}

	result, err := d.ExecuteTool(cmd.Context(), name, params, timeout)
	if err != nil {
		return toolExitError(name, err)
	}
	e.logger.Debug("tool call finished", "tool", name, "job_id", result.JobID, "polls", result.Polls, "duration", result.Duration)

	data, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding result: %v", err)
	}
	_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
	return nil
}

func parseCallParams(cmd *cobra.Command) (map[string]any, error) {
	params := map[string]any{}
	rawJSON, _ := cmd.Flags().GetString("params-json")
	if strings.TrimSpace(rawJSON) != "" {
		decoder := json.NewDecoder(strings.NewReader(rawJSON))
		decoder.UseNumber()
		if err := decoder.Decode(&params); err != nil {
			return nil, err
		}
		if params == nil {
			params = map[string]any{}
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("param")
	for _, pair := range pairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, err)
		}
		params[key] = parseScalar(value)
	}
	return params, nil
}

func parseKeyValue(value string) (string, string, error) {
	key, rest, found := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", errors.New("key is required")
	}
	if !found {
		return "", "", errors.New("value is required")
	}
	return key, rest, nil
}

// parseScalar turns a flag value into the JSON type it looks like. Anything
// that is not a boolean, number or JSON literal stays a string.
func parseScalar(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}
