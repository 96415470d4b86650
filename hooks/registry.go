/*
Package hooks provides the builtin preparation hooks and the registry that
resolves configured hook names to implementations at load time.

Hooks act on the requesting user's backing compute session through the
session capability carried in the bundle. They are side-effecting but
idempotent: re-running a hook for the same request must not clobber work it
already did, which in the usual case means not overwriting an extant file.
*/
package hooks

import (
	"fmt"
	"sort"

	"github.com/sciplat/usher/routing"
)

const (
	NoopName             = "noop"
	EnsureRunningLabName = "ensureRunningLab"
	AutostartLabName     = "autostartLab"
	GithubNotebookName   = "githubNotebook"
	PortalQueryName      = "portalQuery"
	TutorialNotebookName = "tutorialNotebook"
	SystemTestName       = "systemTest"
)

// Registry maps hook names to implementations. Route configuration refers
// to hooks by name; names are resolved once, when the table is built, so an
// unknown name is a load-time error rather than a first-request surprise.
type Registry map[string]routing.Hook

// Register adds hooks to the registry, replacing same-named entries.
func (r Registry) Register(hooks ...routing.Hook) {
	for _, h := range hooks {
		r[h.Name()] = h
	}
}

// Lookup resolves a hook name.
func (r Registry) Lookup(name string) (routing.Hook, error) {
	h, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown hook %q, available: %v", name, r.names())
	}
	return h, nil
}

func (r Registry) names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with the builtin hook set.
func Default(o Options) Registry {
	r := make(Registry)
	r.Register(
		NewNoop(),
		NewEnsureRunningLab(o.SpawnerTarget),
		NewAutostartLab(o.SpawnTimeout),
		NewGithubNotebook(o.GithubAPI, o.NotebookOwners),
		NewPortalQuery(),
		NewTutorialNotebook(o.TutorialOwner, o.TutorialRepo, o.TutorialRef),
		NewSystemTest(o.SystemTestOwner, o.SystemTestRepo, o.SystemTestRef),
	)
	return r
}
