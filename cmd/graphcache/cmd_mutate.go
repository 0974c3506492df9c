package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/graphcache/internal/mutation"
)

var (
	mutateVarsJSON string
	mutateCaller   string
)

var mutateCmd = &cobra.Command{
	Use:   "mutate <name> <document>",
	Short: "Run a mutation against the configured cache and print the server's raw response",
	Long: "Run a mutation against the configured cache and print the server's raw response.\n" +
		"Registers a transparent, do-nothing handler under --caller just so the mutation has\n" +
		"somewhere to fold into (the engine requires at least one registered caller per\n" +
		"mutation name, per spec.md §4.6) — use this to inspect what graphcache sends over\n" +
		"the wire for a given mutation document, not to exercise optimistic updates. The\n" +
		"printed response is keyed by the caller's internal request alias (e.g. \"m_cli\"),\n" +
		"not the mutation's own field name, since the engine always issues an aliased,\n" +
		"per-caller request, even for a single ad hoc CLI caller.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := buildCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		vars, err := parseVars(mutateVarsJSON)
		if err != nil {
			return err
		}

		cache.RegisterMutationHandler(args[0], mutateCaller, passthroughHandler{})

		result, err := cache.Mutate(context.Background(), args[0], args[1], vars)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	mutateCmd.Flags().StringVar(&mutateVarsJSON, "vars", "", "mutation variables as a JSON object")
	mutateCmd.Flags().StringVar(&mutateCaller, "caller", "cli", "caller id the demo handler is registered under")
}

// passthroughHandler takes no action in either pass — it exists only
// so the CLI's ad hoc mutation has a registered caller to run under.
type passthroughHandler struct{}

func (passthroughHandler) Optimistic(map[string]any, any, mutation.TypeLookup) mutation.Outcome {
	return mutation.Outcome{Kind: mutation.Noop}
}

func (passthroughHandler) Authoritative(any, any, mutation.TypeLookup) mutation.Outcome {
	return mutation.Outcome{Kind: mutation.Noop}
}

func (passthroughHandler) GetType() string { return "" }
