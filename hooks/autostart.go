package hooks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

type autostartLab struct {
	spawnTimeout time.Duration
}

// NewAutostartLab returns a hook that guarantees a running lab before the
// redirect proceeds: if the user has none, the default image is spawned and
// the hook waits, bounded by the spawn timeout, until it is ready. The
// bundle is never replaced. Name: "autostartLab".
func NewAutostartLab(spawnTimeout time.Duration) routing.Hook {
	return &autostartLab{spawnTimeout: spawnTimeout}
}

func (h *autostartLab) Name() string { return AutostartLabName }

func (h *autostartLab) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
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

	log.Debugf("starting new default lab for %s", b.User)
	if err := client.SpawnLab(ctx); err != nil {
		return routing.Unchanged(), err
	}
	if err := client.WaitForLab(ctx, h.spawnTimeout); err != nil {
		return routing.Unchanged(), err
	}
	log.Debugf("lab spawned for %s, proceeding with redirection", b.User)
	return routing.Unchanged(), nil
}
