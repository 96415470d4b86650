package hooks

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

// DefaultSpawnerTarget is the lab endpoint that restarts the redirect flow
// once the user's lab is up. The spawner form is shown on the way.
const DefaultSpawnerTarget = "${base_url}/nb/user/${user}/ext/redirect/${path}"

type ensureRunningLab struct {
	spawnerTarget string
}

// NewEnsureRunningLab returns a hook that checks for a running lab. If one
// is running the bundle passes through unchanged; if not, the user is sent
// through the spawner flow instead: the replacement bundle retargets to the
// lab redirect endpoint, keeps the full path (Strip off) and finalizes the
// chain. Name: "ensureRunningLab".
func NewEnsureRunningLab(spawnerTarget string) routing.Hook {
	if spawnerTarget == "" {
		spawnerTarget = DefaultSpawnerTarget
	}
	return &ensureRunningLab{spawnerTarget: spawnerTarget}
}

func (h *ensureRunningLab) Name() string { return EnsureRunningLabName }

func (h *ensureRunningLab) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	client, err := clientFromBundle(b)
	if err != nil {
		return routing.Unchanged(), err
	}
	if err := client.AuthToHub(ctx); err != nil {
		return routing.Unchanged(), err
	}
	stopped, err := client.LabStopped(ctx)
	if err != nil {
		return routing.Unchanged(), err
	}
	if !stopped {
		log.Debugf("%s already has a running lab", b.User)
		return routing.Unchanged(), nil
	}

	log.Debugf("sending %s to spawner", b.User)
	next := b.Clone()
	next.Target = h.spawnerTarget
	next.Strip = false
	next.Final = true
	return routing.Replaced(next), nil
}
