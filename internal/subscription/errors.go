package subscription

import "errors"

// ErrNotSubscribed is returned by ApplyPatch for a caller that never
// called Subscribe.
var ErrNotSubscribed = errors.New("subscription: caller is not subscribed")

// ErrPathRequired is returned when a subscription has more than one
// top-level field and a patch arrives with no explicit path.
var ErrPathRequired = errors.New("subscription: path is required for a multi-field subscription")
