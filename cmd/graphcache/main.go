// Command graphcache is a demo CLI: it configures a graphcache.Cache
// against an HTTP transport (httptransport at GRAPHQL_HTTP_ENDPOINT) and
// runs ad hoc queries/mutations from the terminal. The core library itself has
// no CLI surface (spec.md §6) — this binary is a separate, optional
// demo entry point, grounded on the teacher's cmd/kashvi root-command
// layout (one cobra.Command per file, wired together in an init()).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/graphcache"
	"github.com/shashiranjanraj/graphcache/config"
	"github.com/shashiranjanraj/graphcache/internal/store"
	"github.com/shashiranjanraj/graphcache/pkg/container"
	"github.com/shashiranjanraj/graphcache/pkg/event"
	"github.com/shashiranjanraj/graphcache/reduxstore"
	"github.com/shashiranjanraj/graphcache/schema"
	"github.com/shashiranjanraj/graphcache/transport/httptransport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphcache",
	Short: "graphcache — ad hoc client-side GraphQL cache driver",
	Long:  "graphcache drives a Cache from the terminal: issue a query or mutation against a configured transport and inspect the denormalized result and what got sent over the wire.",
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(mutateCmd)

	// container.Singleton mirrors the teacher's pkg/container
	// register-then-resolve shape: the store and schema are each built
	// once, lazily, the first time a subcommand actually needs them.
	container.Singleton("store", func() interface{} {
		return reduxstore.New()
	})
	container.Singleton("schema", func() interface{} {
		s, err := buildDemoSchema()
		if err != nil {
			panic(fmt.Sprintf("graphcache: build demo schema: %v", err))
		}
		return schema.NewBuilder(s)
	})
	container.Singleton("transport", func() interface{} {
		return httptransport.New(config.GraphQLHTTPEndpoint())
	})

	// A demo listener so "graphcache query/mutate" prints a line after
	// every store change (fired from the reduxstore OnChange callback in
	// buildCache, reporting the entity-type count), using the teacher's
	// pkg/event Fire/Listen dispatcher for this CLI-only concern —
	// the core engines never depend on event themselves.
	event.Listen("cache.dispatched", func(payload interface{}) {
		if config.AppEnv() != "production" {
			fmt.Fprintf(os.Stderr, "[graphcache] %v\n", payload)
		}
	})
}

func buildCache() (*graphcache.Cache, error) {
	st := container.Make("store").(*reduxstore.Store)
	sch := container.Make("schema").(*schema.Builder)
	tr := container.Make("transport").(graphcache.Transport)

	st.OnChange(func(state store.State) {
		event.Fire("cache.dispatched", fmt.Sprintf("store now holds %d entity types", len(state.Entities)))
	})

	return graphcache.New(graphcache.Config{
		Store:            st,
		Schema:           sch,
		Transport:        tr,
		QueryTypeName:    "Query",
		MutationTypeName: "Mutation",
		IDField:          config.IDFieldName(),
	})
}
