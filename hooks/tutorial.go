package hooks

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sciplat/usher/routing"
)

// stageScript is executed inside the user's lab kernel to stage a tutorial
// notebook. It fetches the notebook from the tutorial repository, picks a
// serial-suffixed name if the plain one is taken, and prints the serial so
// the hook can adjust the redirect. Staging runs in the lab rather than
// here because the file has to land in the user's home filesystem.
const stageScript = `import os
import requests
from base64 import b64decode
from pathlib import Path

path = "${path}"
topdir = Path(os.environ["HOME"]) / "notebooks" / "tutorials-on-demand"
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

type tutorialNotebook struct {
	owner string
	repo  string
	ref   string
}

// NewTutorialNotebook returns a hook that stages a tutorial notebook by
// running a fetch script in the user's lab kernel. The script never
// overwrites an extant notebook; when it has to pick a serial-suffixed
// name, the hook carries the serial into the redirect through UniqueID and
// rewrites the target accordingly. A running lab is assumed; chain
// ensureRunningLab or autostartLab before this hook.
// Name: "tutorialNotebook".
func NewTutorialNotebook(owner, repo, ref string) routing.Hook {
	if ref == "" {
		ref = "main"
	}
	return &tutorialNotebook{owner: owner, repo: repo, ref: ref}
}

func (h *tutorialNotebook) Name() string { return TutorialNotebookName }

func (h *tutorialNotebook) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	client, err := clientFromBundle(b)
	if err != nil {
		return routing.Unchanged(), err
	}
	if h.owner == "" || h.repo == "" {
		return routing.Unchanged(), fmt.Errorf("tutorial repository not configured")
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

	log.Debugf("staging tutorial notebook for %s", b.User)
	out, err := lab.RunPython(ctx, code)
	if err != nil {
		return routing.Unchanged(), err
	}

	// The stream output is the serial number and a newline. Zero means
	// the plain name was free and the redirect needs no adjustment.
	serial := strings.TrimSpace(out)
	if serial == "" || serial == "0" {
		log.Debug("continuing to redirect; parameters unchanged")
		return routing.Unchanged(), nil
	}

	next := b.Clone()
	next.UniqueID = serial
	next.Target = strings.Replace(
		b.Target, "${path}.ipynb", "${path}-${unique_id}.ipynb", 1)
	log.Debugf("continuing to redirect with %s", next)
	return routing.Replaced(next), nil
}

// code renders the staging script for the request path, with the route
// discriminator segment removed.
func (h *tutorialNotebook) code(path string) (string, error) {
	_, rest, found := strings.Cut(strings.Trim(path, "/"), "/")
	if !found {
		return "", fmt.Errorf("no tutorial name in path %q", path)
	}
	return routing.NewTemplate(stageScript).Substitute(map[string]string{
		"path":  rest,
		"owner": h.owner,
		"repo":  h.repo,
		"ref":   h.ref,
	})
}
