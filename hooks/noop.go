package hooks

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

type noop struct{}

// NewNoop returns a hook that does nothing. If it runs, the hook machinery
// is working. Name: "noop".
func NewNoop() routing.Hook { return noop{} }

func (noop) Name() string { return NoopName }

func (noop) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	log.Debugf("noop hook called with %s", b)
	return routing.Unchanged(), nil
}
