package gemini

import "errors"

// ErrBackend marks a failed model call. The cause is logged; callers show a
// generic notice instead of surfacing backend details to end users.
var ErrBackend = errors.New("gemini backend failure")
