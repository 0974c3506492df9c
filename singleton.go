package graphcache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shashiranjanraj/graphcache/internal/mutation"
	"github.com/shashiranjanraj/graphcache/internal/subscription"
)

// Package-level singleton wiring, adapted from pkg/container's
// register-then-resolve shape: Configure binds the one process-wide
// Cache, and Query/Mutate/Subscribe/ApplyPatch resolve it on every
// call instead of panicking on an unknown binding, since "not
// configured yet" is an ordinary, recoverable error here rather than a
// programmer mistake to panic over.
var (
	singletonMu    sync.RWMutex
	singletonCache *Cache
)

// Configure builds a Cache from cfg and binds it as the process-wide
// instance used by the package-level helpers below.
func Configure(cfg Config) error {
	c, err := New(cfg)
	if err != nil {
		return err
	}
	singletonMu.Lock()
	singletonCache = c
	singletonMu.Unlock()
	return nil
}

// Default returns the process-wide Cache bound by Configure, or nil if
// Configure has never been called.
func Default() *Cache {
	singletonMu.RLock()
	defer singletonMu.RUnlock()
	return singletonCache
}

func resolve() (*Cache, error) {
	c := Default()
	if c == nil {
		return nil, ErrNotConfigured
	}
	return c, nil
}

// Query runs a query against the process-wide Cache.
func Query(ctx context.Context, callerID, document string, variables map[string]any) (json.RawMessage, error) {
	c, err := resolve()
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, callerID, document, variables)
}

// Mutate runs a mutation against the process-wide Cache.
func Mutate(ctx context.Context, mutationName, document string, variables map[string]any) (json.RawMessage, error) {
	c, err := resolve()
	if err != nil {
		return nil, err
	}
	return c.Mutate(ctx, mutationName, document, variables)
}

// RegisterMutationHandler registers a mutation handler against the
// process-wide Cache.
func RegisterMutationHandler(mutationName, callerID string, h mutation.Handler) error {
	c, err := resolve()
	if err != nil {
		return err
	}
	c.RegisterMutationHandler(mutationName, callerID, h)
	return nil
}

// Subscribe registers a subscription against the process-wide Cache.
func Subscribe(callerID, subscriptionText string, variables map[string]any) error {
	c, err := resolve()
	if err != nil {
		return err
	}
	return c.Subscribe(callerID, subscriptionText, variables)
}

// ApplyPatch applies an inbound subscription patch against the
// process-wide Cache.
func ApplyPatch(ctx context.Context, patch subscription.Patch) error {
	c, err := resolve()
	if err != nil {
		return err
	}
	return c.ApplyPatch(ctx, patch)
}

// resetSingleton clears the process-wide Cache — test-only, mirroring
// pkg/event.Flush's "useful in tests" role for the package-level state.
func resetSingleton() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	singletonCache = nil
}
