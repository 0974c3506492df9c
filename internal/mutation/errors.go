package mutation

import "errors"

// ErrNoHandler is returned by Mutate when no caller has registered a
// handler for the mutation name.
var ErrNoHandler = errors.New("mutation: no registered handler")
