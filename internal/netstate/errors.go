package netstate

import "fmt"

// The reducer and the command layer built on it report failures through
// three error shapes (spec.md §7): LookupError when a referenced object
// id doesn't resolve, ValidationError when caller-supplied content fails
// a network invariant, and PermissionError when the acting user lacks
// the membership/account flags an operation requires. Callers type-switch
// on these rather than string-matching error text.

// lookupError/conflictError are the reducer's internal, unexported
// vocabulary; Apply never panics on a bad event, it just logs and moves
// on, so these never escape to the command layer directly. They are kept
// distinct from the exported taxonomy below because reducer failures and
// command-layer failures are diagnosed differently: the former is a sign
// of a divergent replica, the latter a rejected client request.
type lookupError struct {
	Kind string
	ID   string
}

func (e lookupError) Error() string {
	return fmt.Sprintf("no such %s: %s", e.Kind, e.ID)
}

type conflictError struct {
	Kind string
	ID   string
}

func (e conflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.ID)
}

// LookupError is returned by View-side accessors (views.go) when asked
// for an object id that doesn't currently exist.
type LookupError struct {
	Kind string
	ID   fmt.Stringer
}

func (e LookupError) Error() string {
	return fmt.Sprintf("no such %s: %v", e.Kind, e.ID)
}

// ValidationError is returned when a requested operation's arguments
// violate a network invariant that has nothing to do with permissions -
// e.g. a channel name that doesn't start with '#', a topic longer than
// the configured limit.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionError is returned when the acting user lacks the channel
// membership flag or account privilege an operation requires.
type PermissionError struct {
	Action   string
	Required string
}

func (e PermissionError) Error() string {
	return fmt.Sprintf("%s requires %s", e.Action, e.Required)
}
