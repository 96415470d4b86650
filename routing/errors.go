package routing

import (
	"fmt"
	"strings"
)

// MatchNotFoundError is returned when no configured rule's source prefix
// matches the request path. It carries the attempted path and all
// configured prefixes for diagnostics.
type MatchNotFoundError struct {
	Path     string
	Prefixes []string
}

func (e *MatchNotFoundError) Error() string {
	return fmt.Sprintf("no match for %s found in [%s]", e.Path, strings.Join(e.Prefixes, ", "))
}

// HookError is returned when a hook fails or violates the bundle contract.
// It identifies the offending hook and the bundle state at failure. Fields
// is non-empty when the cause was an attempt to change immutable bundle
// fields.
type HookError struct {
	Hook   string
	Bundle *Bundle
	Fields []string
	Err    error
}

func (e *HookError) Error() string {
	if len(e.Fields) > 0 {
		plural := ""
		if len(e.Fields) > 1 {
			plural = "s"
		}
		return fmt.Sprintf(
			"hook %s with parameters %s attempted to change immutable parameter%s: %s",
			e.Hook, e.Bundle, plural, strings.Join(e.Fields, ", "),
		)
	}
	return fmt.Sprintf("hook %s with parameters %s failed: %v", e.Hook, e.Bundle, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// ResolutionError is returned when template substitution leaves unresolved
// placeholders or the substituted string is not a valid absolute URL.
type ResolutionError struct {
	Target string
	Bundle *Bundle
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s with parameters %s failed: %v", e.Target, e.Bundle, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
