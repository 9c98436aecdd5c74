package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"reins/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status <integration-id>",
	Short: "Show one integration's operations and schemas",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := client.New(endpoint, GetVersion())
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	operations, err := c.Activate(ctx, args[0])
	if err != nil {
		return err
	}
	if len(operations) == 0 {
		fmt.Printf("Integration %s exposes no operations.\n", args[0])
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Operation", "Description", "Parameters"})
	for _, op := range operations {
		params := ""
		if op.Parameters != nil {
			encoded, err := json.Marshal(op.Parameters)
			if err == nil {
				params = string(encoded)
			}
		}
		t.AppendRow(table.Row{op.Name, op.Description, params})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
