package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reins/internal/client"
)

var executeArgsJSON string

var executeCmd = &cobra.Command{
	Use:   "execute <integration-id> <operation>",
	Short: "Run one integration operation through the daemon",
	Long: `Routes an operation call through the daemon's meta-tool, the same path
the agent uses, and prints the dual-channel result.`,
	Args: cobra.ExactArgs(2),
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	var opArgs map[string]interface{}
	if executeArgsJSON != "" {
		if err := json.Unmarshal([]byte(executeArgsJSON), &opArgs); err != nil {
			return fmt.Errorf("invalid --args JSON: %w", err)
		}
	}

	ctx := cmd.Context()
	c := client.New(endpoint, GetVersion())
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	result, err := c.Execute(ctx, args[0], args[1], opArgs)
	if err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	if result.IsError() {
		return fmt.Errorf("operation %s.%s failed", args[0], args[1])
	}
	return nil
}

func init() {
	executeCmd.Flags().StringVar(&executeArgsJSON, "args", "", "Operation arguments as a JSON object")
	rootCmd.AddCommand(executeCmd)
}
