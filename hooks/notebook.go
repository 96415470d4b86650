package hooks

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/sciplat/usher/routing"
	"github.com/sciplat/usher/session"
)

// DefaultGithubAPI is the public GitHub API root.
const DefaultGithubAPI = "https://api.github.com"

// DefaultNotebookOwners is the default allow-list of repository owners for
// on-demand notebooks.
var DefaultNotebookOwners = []string{"sciplat"}

// onDemandDir is where fetched notebooks land in the user's lab, relative
// to the home directory.
const onDemandDir = "notebooks/on-demand"

type githubNotebook struct {
	api    string
	owners []string
	http   *http.Client
}

// NewGithubNotebook returns a hook that takes a GitHub
// host/owner/repo/path[@branch] reference from the request path, fetches
// the notebook from the GitHub contents API and writes it into the user's
// lab under notebooks/on-demand. An already-existing file is never
// overwritten: a numeric serial is appended to find a free name, and a
// nonzero serial is carried to the redirect through the bundle's UniqueID.
// The replacement bundle retargets to the written file. A running lab is
// assumed; chain ensureRunningLab or autostartLab before this hook.
// Name: "githubNotebook".
func NewGithubNotebook(api string, owners []string) routing.Hook {
	if api == "" {
		api = DefaultGithubAPI
	}
	if len(owners) == 0 {
		owners = DefaultNotebookOwners
	}
	return &githubNotebook{
		api:    strings.TrimSuffix(api, "/"),
		owners: owners,
		http:   &http.Client{Timeout: session.DefaultHTTPTimeout},
	}
}

func (h *githubNotebook) Name() string { return GithubNotebookName }

// notebookRef is a parsed host/owner/repo/path[@branch] reference.
type notebookRef struct {
	host   string
	owner  string
	repo   string
	rest   string
	branch string
}

// parseNotebookRef parses the request path after the route prefix segment,
// e.g. "github.com/sciplat/tutorials/intro/nb01@main".
func parseNotebookRef(path string) (notebookRef, error) {
	var ref notebookRef

	parts := strings.Split(path, "@")
	if len(parts) > 2 {
		return ref, fmt.Errorf("more than one '@' found in path %q", path)
	}
	if len(parts) == 2 {
		path, ref.branch = parts[0], parts[1]
	}

	components := strings.Split(path, "/")
	if len(components) < 4 {
		return ref, fmt.Errorf("host/owner/repo/file not found in %q", path)
	}
	ref.host = components[0]
	ref.owner = components[1]
	ref.repo = components[2]
	ref.rest = strings.TrimSuffix(strings.Join(components[3:], "/"), ".ipynb")
	return ref, nil
}

func (h *githubNotebook) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	client, err := clientFromBundle(b)
	if err != nil {
		return routing.Unchanged(), err
	}

	// The first path segment is the route discriminator, the reference
	// starts after it.
	_, refPath, found := strings.Cut(b.Path, "/")
	if !found {
		return routing.Unchanged(), fmt.Errorf("no notebook reference in path %q", b.Path)
	}
	ref, err := parseNotebookRef(refPath)
	if err != nil {
		return routing.Unchanged(), err
	}
	// The GitHub API only serves github.com content.
	if ref.host != "github.com" {
		return routing.Unchanged(), fmt.Errorf("%q is not github.com", ref.host)
	}
	if !slices.Contains(h.owners, ref.owner) {
		return routing.Unchanged(), fmt.Errorf("%q not in allowed owners %v", ref.owner, h.owners)
	}

	if err := client.AuthToHub(ctx); err != nil {
		return routing.Unchanged(), err
	}
	if err := client.AuthToLab(ctx); err != nil {
		return routing.Unchanged(), err
	}

	relDir := onDemandDir + "/" + ref.host + "/" + ref.owner + "/" + ref.repo
	if dir, _, ok := cutLast(ref.rest, "/"); ok {
		relDir += "/" + dir
	}
	_, base, _ := cutLast(ref.rest, "/")

	relPath, serial, err := freeNotebookName(ctx, client, relDir, base)
	if err != nil {
		return routing.Unchanged(), err
	}

	content, err := h.fetch(ctx, ref)
	if err != nil {
		return routing.Unchanged(), err
	}
	if err := writeNotebook(ctx, client, relPath, content); err != nil {
		return routing.Unchanged(), err
	}

	next := b.Clone()
	next.Target = strings.TrimSuffix(b.BaseURL, "/") + "/nb/user/" + b.User + "/lab/tree/" + relPath
	if serial > 0 {
		next.UniqueID = strconv.Itoa(serial)
	}
	log.Debugf("continuing to redirect with %s", next)
	return routing.Replaced(next), nil
}

// fetch retrieves the notebook source through the GitHub contents API. The
// call is anonymous on purpose: the user's delegated platform token must
// never leave the platform.
func (h *githubNotebook) fetch(ctx context.Context, ref notebookRef) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s.ipynb", h.api, ref.owner, ref.repo, ref.rest)
	if ref.branch != "" {
		url += "?ref=" + ref.branch
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	encoded := gjson.GetBytes(body, "content").String()
	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding notebook content from %s: %w", url, err)
	}
	return string(content), nil
}

// freeNotebookName counts up from the plain name until it finds one not yet
// present in the user's lab, so extant notebooks are never overwritten.
func freeNotebookName(ctx context.Context, client session.Client, relDir, base string) (string, int, error) {
	userEP := userEndpoint(client)
	for serial := 0; ; serial++ {
		name := base
		if serial > 0 {
			name = fmt.Sprintf("%s-%d", base, serial)
		}
		relPath := relDir + "/" + name + ".ipynb"
		status, err := client.Head(ctx, userEP+"/files/"+relPath)
		if err != nil {
			return "", 0, err
		}
		if status != http.StatusOK {
			return relPath, serial, nil
		}
	}
}

// writeNotebook stores the notebook through the lab contents API.
func writeNotebook(ctx context.Context, client session.Client, relPath, content string) error {
	url := userEndpoint(client) + "/api/contents/" + relPath
	body := map[string]any{
		"type":    "file",
		"format":  "text",
		"content": content,
	}
	status, err := client.PutJSON(ctx, url, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("PUT %s returned status %d", url, status)
	}
	return nil
}

// cutLast splits s at the last occurrence of sep.
func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", s, false
	}
	return s[:i], s[i+len(sep):], true
}
