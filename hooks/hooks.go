package hooks

import (
	"fmt"
	"strings"
	"time"

	"github.com/sciplat/usher/routing"
	"github.com/sciplat/usher/session"
)

// Options configures the builtin hook set.
type Options struct {
	// SpawnerTarget is the template ensureRunningLab redirects to when
	// the user has no running lab. Empty means DefaultSpawnerTarget.
	SpawnerTarget string

	// SpawnTimeout bounds autostartLab's wait for a spawning lab.
	SpawnTimeout time.Duration

	// GithubAPI is the GitHub API root used by githubNotebook. Empty
	// means the public API.
	GithubAPI string

	// NotebookOwners is the allow-list of repository owners
	// githubNotebook will fetch from.
	NotebookOwners []string

	// TutorialOwner, TutorialRepo and TutorialRef locate the tutorial
	// notebook repository staged by tutorialNotebook.
	TutorialOwner string
	TutorialRepo  string
	TutorialRef   string

	// SystemTestOwner, SystemTestRepo and SystemTestRef locate the
	// verification notebook repository staged by systemTest. Empty
	// fields fall back to the pinned defaults.
	SystemTestOwner string
	SystemTestRepo  string
	SystemTestRef   string
}

// clientFromBundle extracts the session capability a hook acts through.
func clientFromBundle(b *routing.Bundle) (session.Client, error) {
	c, ok := b.Client.(session.Client)
	if !ok {
		return nil, fmt.Errorf("bundle carries no session client (got %T)", b.Client)
	}
	return c, nil
}

// userEndpoint is the root of the user's lab HTTP surface.
func userEndpoint(c session.Client) string {
	return strings.TrimSuffix(c.BaseURL(), "/") + "/nb/user/" + c.User()
}
