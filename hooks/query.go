package hooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

type portalQuery struct{}

// NewPortalQuery returns a hook that takes a portal query id from the last
// segment of the request path and asks the user's lab to materialize a
// query notebook for it. If the notebook already exists nothing happens.
// The bundle passes through unchanged. A running lab is assumed; chain
// ensureRunningLab or autostartLab before this hook. Name: "portalQuery".
func NewPortalQuery() routing.Hook { return portalQuery{} }

func (portalQuery) Name() string { return PortalQueryName }

func (portalQuery) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	client, err := clientFromBundle(b)
	if err != nil {
		return routing.Unchanged(), err
	}

	// The path is .../queries/<query-id>; the id is the last component.
	queryID := b.Path[strings.LastIndex(b.Path, "/")+1:]
	queryURL := strings.TrimSuffix(b.BaseURL, "/") + "/api/tap/async/" + queryID
	userEP := userEndpoint(client)
	log.Debugf("tap query url %s", queryURL)

	if err := client.AuthToHub(ctx); err != nil {
		return routing.Unchanged(), err
	}
	if err := client.AuthToLab(ctx); err != nil {
		return routing.Unchanged(), err
	}

	nbEndpoint := userEP + "/files/notebooks/queries/portal_" + queryID + ".ipynb"
	status, err := client.Head(ctx, nbEndpoint)
	if err != nil {
		return routing.Unchanged(), err
	}
	if status == http.StatusOK {
		log.Debugf("notebook for query %s exists", queryID)
		return routing.Unchanged(), nil
	}

	log.Debugf("creating notebook for query %s", queryID)
	queryEndpoint := userEP + "/ext/query"
	body := map[string]string{"type": "portal", "value": queryURL}
	status, err = client.PostJSON(ctx, queryEndpoint, body)
	if err != nil {
		return routing.Unchanged(), err
	}
	if status >= http.StatusBadRequest {
		return routing.Unchanged(), fmt.Errorf("POST to %s returned status %d", queryEndpoint, status)
	}
	return routing.Unchanged(), nil
}
