package hooks

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

// checkScript is executed inside the user's lab kernel to stage a
// verification notebook from the platform's system-test repository. Like
// the tutorial script it never overwrites an extant notebook and prints the
// serial it had to pick.
const checkScript = `import os
import requests
from base64 import b64decode
from pathlib import Path

path = "${path}"
topdir = Path(os.environ["HOME"]) / "notebooks" / "on-demand"
nbdir = (topdir / path).parent
nbdir.mkdir(exist_ok=True, parents=True)
nb_base = Path(path).name
nb = nbdir / f"{nb_base}.ipynb"
serial = 0
while nb.exists():
    # Count up until we find an unused number to append to the name.
    serial += 1
    nb = nbdir / f"{nb_base}-{serial}.ipynb"

url = f"https://api.github.com/repos/${owner}/${repo}/contents/{path}.ipynb?ref=${ref}"
r = requests.get(url, timeout=10)
r.raise_for_status()
content = b64decode(r.json()["content"]).decode()
nb.write_text(content)
print(serial)
`

// Default source of the verification notebooks.
const (
	DefaultSystemTestOwner = "sciplat"
	DefaultSystemTestRepo  = "system-test"
	DefaultSystemTestRef   = "prod"
)

type systemTest struct {
	owner string
	repo  string
	ref   string
}

// NewSystemTest returns a hook that stages a platform verification notebook
// in the user's lab. It works like tutorialNotebook but pulls from the
// pinned system-test repository and, when a serial-suffixed name had to be
// picked, rewrites only the last target component. A running lab is
// assumed; chain ensureRunningLab before this hook. Name: "systemTest".
func NewSystemTest(owner, repo, ref string) routing.Hook {
	if owner == "" {
		owner = DefaultSystemTestOwner
	}
	if repo == "" {
		repo = DefaultSystemTestRepo
	}
	if ref == "" {
		ref = DefaultSystemTestRef
	}
	return &systemTest{owner: owner, repo: repo, ref: ref}
}

func (h *systemTest) Name() string { return SystemTestName }

func (h *systemTest) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	client, err := clientFromBundle(b)
	if err != nil {
		return routing.Unchanged(), err
	}

	if err := client.AuthToHub(ctx); err != nil {
		return routing.Unchanged(), err
	}
	if err := client.AuthToLab(ctx); err != nil {
		return routing.Unchanged(), err
	}

	code, err := h.code(b.Path)
	if err != nil {
		return routing.Unchanged(), err
	}
	lab, err := client.OpenLabSession(ctx)
	if err != nil {
		return routing.Unchanged(), err
	}
	defer lab.Close()

	log.Debugf("staging verification notebook for %s", b.User)
	out, err := lab.RunPython(ctx, code)
	if err != nil {
		return routing.Unchanged(), err
	}

	serial := strings.TrimSpace(out)
	if serial == "" || serial == "0" {
		log.Debug("continuing to redirect; parameters unchanged")
		return routing.Unchanged(), nil
	}

	// The notebook landed under a serial-suffixed name, so only the last
	// target component changes.
	next := b.Clone()
	next.UniqueID = serial
	comps := strings.Split(b.Target, "/")
	comps[len(comps)-1] = "${path}-${unique_id}.ipynb"
	next.Target = strings.Join(comps, "/")
	log.Debugf("continuing to redirect with %s", next)
	return routing.Replaced(next), nil
}

func (h *systemTest) code(path string) (string, error) {
	_, rest, found := strings.Cut(strings.Trim(path, "/"), "/")
	if !found {
		return "", fmt.Errorf("no notebook name in path %q", path)
	}
	return routing.NewTemplate(checkScript).Substitute(map[string]string{
		"path":  rest,
		"owner": h.owner,
		"repo":  h.repo,
		"ref":   h.ref,
	})
}
