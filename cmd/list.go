package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"reins/internal/client"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active integrations of a running daemon",
	Long: `Connects to the daemon's MCP endpoint and prints the capability index:
every active integration with its operation names.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := client.New(endpoint, GetVersion())
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	index, err := c.Discover(ctx)
	if err != nil {
		return err
	}
	if len(index) == 0 {
		fmt.Println("No active integrations.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Integration", "Operations"})
	for _, entry := range index {
		id, ops, found := strings.Cut(entry, ":")
		if !found {
			ops = ""
		}
		t.AppendRow(table.Row{id, strings.ReplaceAll(ops, ",", ", ")})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
}
