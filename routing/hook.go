package routing

import "context"

// Hook is one preparation step in a rule's chain. Hooks run strictly in
// configured order, one at a time, and may perform arbitrary I/O: spawning
// a compute session for the user, fetching content into it, running code in
// it. A hook must be idempotent with respect to its externally visible side
// effects; the engine never retries, so any bounded wait or retry policy
// belongs inside the hook.
type Hook interface {
	// Name identifies the hook in configuration and in failure reports.
	Name() string

	// Run executes the hook against the bundle. It returns Unchanged()
	// to keep the input bundle, or Replaced(b) to substitute a new one
	// for the rest of the chain. Any error aborts the resolution.
	Run(ctx context.Context, b *Bundle) (HookResult, error)
}

// HookResult is the outcome of a hook run: either the input bundle stays in
// effect, or a replacement takes over for the remaining hooks.
type HookResult struct {
	bundle *Bundle
}

// Unchanged reports that the hook left the bundle as it was.
func Unchanged() HookResult { return HookResult{} }

// Replaced hands a replacement bundle to the rest of the chain. The
// replacement may differ from the input only in the staging fields.
func Replaced(b *Bundle) HookResult { return HookResult{bundle: b} }

// Replacement returns the replacement bundle and whether one was provided.
func (r HookResult) Replacement() (*Bundle, bool) {
	return r.bundle, r.bundle != nil
}

// HookFunc adapts a named function to the Hook interface.
type HookFunc struct {
	HookName string
	F        func(ctx context.Context, b *Bundle) (HookResult, error)
}

func (h HookFunc) Name() string { return h.HookName }

func (h HookFunc) Run(ctx context.Context, b *Bundle) (HookResult, error) {
	return h.F(ctx, b)
}
