package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciplat/usher/hooks"
	"github.com/sciplat/usher/routing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "usher.yaml", `
address: ":9090"
base-url: https://data.example.com
log-level: debug
spawn-timeout: 120
routes:
  - source: /tutorials/
    target: ${base_url}/nb/user/${user}/lab/tree/${path}.ipynb
    hooks: [ensureRunningLab, tutorialNotebook]
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", c.Address)
	assert.Equal(t, "https://data.example.com", c.BaseURL)
	assert.Equal(t, DefaultUserHeader, c.UserHeader)
	assert.Equal(t, 120*time.Second, c.SpawnTimeoutDuration())
	require.Len(t, c.Routes, 1)
	assert.Equal(t, []string{"ensureRunningLab", "tutorialNotebook"}, c.Routes[0].Hooks)
}

func TestLoadConfigRejectsBadBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative/path"} {
		path := writeFile(t, "usher.yaml", "base-url: \""+base+"\"\n")
		_, err := Load(path)
		require.Error(t, err, base)
		assert.Contains(t, err.Error(), "base-url")
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "usher.yaml", `
base-url: https://data.example.com
no-such-setting: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRoutesFromFile(t *testing.T) {
	routes := writeFile(t, "routes.yaml", `
routes:
  - source: /queries/
    target: ${base_url}/nb/user/${user}/lab/tree/notebooks/queries/portal_${path}.ipynb
    hooks: [portalQuery]
`)
	c := New()
	c.RoutesFile = routes

	defs, err := c.LoadRoutes()
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "/queries/", defs[0].Source)
}

func TestBuildTable(t *testing.T) {
	registry := hooks.Default(hooks.Options{})
	defs := []RouteDef{
		{Source: "tutorials", Target: "${base_url}/t/${path}", Hooks: []string{"noop"}},
		{Source: "/tutorials/advanced/", Target: "${base_url}/a/${path}"},
	}

	table, err := BuildTable(defs, registry)
	require.NoError(t, err)
	// Canonicalized and sorted most specific first.
	assert.Equal(t, []string{"/tutorials/advanced/", "/tutorials/"}, table.Routes())

	b := routing.NewBundle("rachel", "https://data.example.com", "tutorials/advanced/x", "tok", nil)
	got, err := table.Resolve(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, "https://data.example.com/a/x", got)
}

func TestBuildTableRejectsUnknownHook(t *testing.T) {
	registry := hooks.Default(hooks.Options{})
	defs := []RouteDef{{
		Source: "/tutorials/",
		Target: "${base_url}/t/${path}",
		Hooks:  []string{"definitelyNotAHook"},
	}}

	_, err := BuildTable(defs, registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitelyNotAHook")
	assert.Contains(t, err.Error(), "/tutorials/")
}

func TestBuildTableRejectsIncompleteRoute(t *testing.T) {
	_, err := BuildTable([]RouteDef{{Source: "/x/"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source and target")
}
