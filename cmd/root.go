package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes follow the runtime signal contract: 0 for clean shutdown,
// 1 for startup or command failure.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// endpoint is the daemon MCP endpoint the client commands talk to.
var endpoint string

var rootCmd = &cobra.Command{
	Use:   "reins",
	Short: "Per-user integration daemon for conversational agents",
	Long: `reins runs a local daemon that manages external service integrations
(mail, storage, search, chat) on behalf of a conversational agent: it
drives each integration's lifecycle, custodies credentials encrypted at
rest, keeps OAuth tokens refreshed, and exposes every capability to the
agent through a single meta-tool over MCP.`,
	SilenceUsage: true,
}

// SetVersion injects the build version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the injected build version.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI and exits the process on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "reins version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
	os.Exit(ExitCodeSuccess)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "http://localhost:8390/mcp",
		"MCP endpoint of the running daemon")
}
