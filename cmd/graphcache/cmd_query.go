package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryCallerID string
	queryVarsJSON string
)

var queryCmd = &cobra.Command{
	Use:   "query <document>",
	Short: "Run a query against the configured cache and print the denormalized result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := buildCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		vars, err := parseVars(queryVarsJSON)
		if err != nil {
			return err
		}

		result, err := cache.Query(context.Background(), queryCallerID, args[0], vars)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryCallerID, "caller", "cli", "caller id this query is cached under")
	queryCmd.Flags().StringVar(&queryVarsJSON, "vars", "", "query variables as a JSON object")
}

func parseVars(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("graphcache: --vars must be a JSON object: %w", err)
	}
	return vars, nil
}

func printJSON(raw json.RawMessage) error {
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
