package graphcache

import "errors"

// ErrNotConfigured is returned by the package-level Query/Mutate/
// Subscribe helpers when Configure has never been called.
var ErrNotConfigured = errors.New("graphcache: not configured, call Configure first")

// ErrInvalidConfig wraps a Config that failed validation — see
// pkg/validate's struct tags on Config's fields.
var ErrInvalidConfig = errors.New("graphcache: invalid config")

// ErrUnknownMutation is returned by Mutate when no caller has ever
// registered a handler for the given mutation name.
var ErrUnknownMutation = errors.New("graphcache: unknown mutation")

// ErrBadPatchPath is returned by ApplyPatch when a patch has no Path
// and the subscription has more than one top-level field; it wraps
// subscription.ErrPathRequired.
var ErrBadPatchPath = errors.New("graphcache: bad subscription patch path")
