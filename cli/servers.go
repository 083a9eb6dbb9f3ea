package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// NewServersCmd creates the "servers" command group.
func NewServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage backend tool servers",
	}
	cmd.AddCommand(newServersListCmd())
	cmd.AddCommand(newServersAddCmd())
	cmd.AddCommand(newServersImportCmd())
	cmd.AddCommand(newServersRemoveCmd())
	return cmd
}

func newServersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		Args:  cobra.NoArgs,
		RunE:  runServersList,
	}
	cmd.Flags().Bool("json", false, "Print servers as JSON")
	return cmd
}

func runServersList(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	servers, err := e.store.ListServers(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing servers: %v", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(tool.RedactServers(servers), "", "  ")
		if err != nil {
			return exitError(exitRuntime, "encoding servers: %v", err)
		}
		_, _ = cmd.OutOrStdout().Write(append(data, '\n'))
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tPROTOCOL\tBASE_URL\tACTIVE\tSTATUS\tTOOLS")
	for _, server := range servers {
		status := server.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%t\t%s\t%d\n",
			server.ID,
			server.DisplayName(),
			server.Protocol,
			server.BaseURL,
			server.Active,
			status,
			len(server.Tools),
		)
	}
	return writer.Flush()
}

func newServersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a backend tool server",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersAdd,
	}
	cmd.Flags().String("url", "", "Server base URL (required)")
	cmd.Flags().String("protocol", string(tool.ProtocolHTTP), "Protocol: http | sse-poll | websocket | stdio")
	cmd.Flags().String("server-scope", "", "Scope that owns the server (empty: shared)")
	cmd.Flags().Duration("poll-interval", 0, "Interval between result polls (default 1s)")
	cmd.Flags().Duration("timeout", 0, "Per-call timeout (default: dispatch.default_timeout)")
	cmd.Flags().String("credential", "", "Credential reference, e.g. env:SEARCH_API_KEY")
	cmd.Flags().Bool("encrypt-credential", false, "Encrypt a literal --credential before storing it")
	cmd.Flags().String("selector", "", "jq expression applied to completed results")
	cmd.Flags().String("discovery-path", "", "Discovery path (default "+tool.DefaultDiscoveryPath+")")
	cmd.Flags().String("execute-path", "", "Execute path (default "+tool.DefaultExecutePath+")")
	cmd.Flags().String("result-path", "", "Result path prefix (default "+tool.DefaultResultPath+")")
	cmd.Flags().Bool("inactive", false, "Store the server without activating it")
	return cmd
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	url, _ := flags.GetString("url")
	if strings.TrimSpace(url) == "" {
		return exitError(exitValidation, "--url is required")
	}
	selector, _ := flags.GetString("selector")
	if strings.TrimSpace(selector) != "" {
		if _, err := tool.CompileResultSelector(selector); err != nil {
			return exitError(exitValidation, "invalid --selector: %v", err)
		}
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	protocol, _ := flags.GetString("protocol")
	scope, _ := flags.GetString("server-scope")
	pollInterval, _ := flags.GetDuration("poll-interval")
	timeout, _ := flags.GetDuration("timeout")
	if timeout <= 0 {
		timeout = e.cfg.Dispatch.DefaultTimeout
	}
	credential, _ := flags.GetString("credential")
	if encrypt, _ := flags.GetBool("encrypt-credential"); encrypt {
		credential, err = tool.EncryptCredential(credential)
		if err != nil {
			return exitError(exitRuntime, "encrypting credential: %v", err)
		}
	}
	discoveryPath, _ := flags.GetString("discovery-path")
	executePath, _ := flags.GetString("execute-path")
	resultPath, _ := flags.GetString("result-path")
	inactive, _ := flags.GetBool("inactive")

	server := tool.ServerConfig{
		Scope:          strings.TrimSpace(scope),
		Name:           strings.TrimSpace(args[0]),
		BaseURL:        url,
		Protocol:       tool.ParseProtocolType(protocol),
		DiscoveryPath:  discoveryPath,
		ExecutePath:    executePath,
		ResultPath:     resultPath,
		PollInterval:   pollInterval,
		Timeout:        timeout,
		CredentialRef:  strings.TrimSpace(credential),
		ResultSelector: strings.TrimSpace(selector),
		Active:         !inactive,
	}.Normalized()

	stored, err := e.store.UpsertServer(cmd.Context(), server)
	if err != nil {
		if tool.ErrorCode(err) == tool.ErrorCodeInvalidRequest {
			return exitError(exitValidation, "%v", err)
		}
		return exitError(exitRuntime, "saving server: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (id=%d, protocol=%s)\n", stored.Name, stored.ID, stored.Protocol)
	return nil
}

func newServersImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <servers.yaml>",
		Short: "Import server definitions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersImport,
	}
}

// runServersImport copies every server in the file into the configured store.
// Imported servers get fresh ids so they never overwrite existing entries.
func runServersImport(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(args[0]); err != nil {
		return exitError(exitInputParse, "reading %s: %v", args[0], err)
	}
	source := tool.NewFileStore(args[0])
	servers, err := source.ListServers(cmd.Context())
	if err != nil {
		return exitError(exitInputParse, "reading %s: %v", args[0], err)
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	for _, server := range servers {
		server.ID = 0
		server.Status = ""
		server.LastConnected = time.Time{}
		stored, err := e.store.UpsertServer(cmd.Context(), server.Normalized())
		if err != nil {
			return exitError(exitRuntime, "importing server %q: %v", server.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported server %s (id=%d)\n", stored.Name, stored.ID)
	}
	return nil
}

func newServersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a server by id",
		Args:  cobra.ExactArgs(1),
		RunE:  runServersRemove,
	}
}

func runServersRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return exitError(exitValidation, "invalid server id %q", args[0])
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	servers, err := e.store.ListServers(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing servers: %v", err)
	}
	if !slices.ContainsFunc(servers, func(server tool.ServerConfig) bool { return server.ID == id }) {
		return exitError(exitNotFound, "server %d not found", id)
	}
	if err := e.store.DeleteServer(cmd.Context(), id); err != nil {
		return exitError(exitRuntime, "removing server: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed server %d\n", id)
	return nil
}
