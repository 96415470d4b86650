package usher

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciplat/usher/config"
	"github.com/sciplat/usher/hooks/hooktest"
	"github.com/sciplat/usher/routing"
	"github.com/sciplat/usher/session"
)

const testBase = "https://sciplat.example.com"

func newTestHandler(t *testing.T, rules ...*routing.Rule) *resolveHandler {
	t.Helper()
	return &resolveHandler{
		routePrefix: "/usher/rewrite/",
		baseURL:     testBase,
		userHeader:  config.DefaultUserHeader,
		tokenHeader: config.DefaultTokenHeader,
		table:       routing.NewTable(rules...),
		clients: session.NewManager(session.ManagerOptions{
			BaseURL: testBase,
			Factory: func(user, token string) (session.Client, error) {
				return &hooktest.Client{FUser: user, FBaseURL: testBase}, nil
			},
		}),
	}
}

func resolveRequest(path string) *http.Request {
	r := httptest.NewRequest("GET", "/usher/rewrite/"+path, nil)
	r.Header.Set(config.DefaultUserHeader, "rachel")
	r.Header.Set(config.DefaultTokenHeader, "gt-abcdef123456")
	return r
}

func TestHandlerRedirects(t *testing.T) {
	h := newTestHandler(t, routing.NewRule(
		"/tutorials/",
		"${base_url}/nb/user/${user}/lab/tree/${path}",
	))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, resolveRequest("tutorials/week1/nb01"))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t,
		testBase+"/nb/user/rachel/lab/tree/week1/nb01",
		w.Header().Get("Location"))
}

func TestHandlerNoMatch(t *testing.T) {
	h := newTestHandler(t, routing.NewRule("/tutorials/", "${base_url}/${path}"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, resolveRequest("portal/query-results"))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerRequiresDelegatedIdentity(t *testing.T) {
	h := newTestHandler(t, routing.NewRule("/tutorials/", "${base_url}/${path}"))

	for _, missing := range []string{config.DefaultUserHeader, config.DefaultTokenHeader} {
		w := httptest.NewRecorder()
		r := resolveRequest("tutorials/nb01")
		r.Header.Del(missing)
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "missing %s", missing)
	}
}

func TestHandlerHookFailure(t *testing.T) {
	failing := &hooktest.Hook{FName: "failing", Err: errors.New("lab exploded")}
	h := newTestHandler(t, routing.NewRule("/tutorials/", "${base_url}/${path}", failing))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, resolveRequest("tutorials/nb01"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// Hook failures must not leak internals to the caller.
	assert.NotContains(t, w.Body.String(), "lab exploded")
}

func TestHandlerClientFailure(t *testing.T) {
	h := newTestHandler(t, routing.NewRule("/tutorials/", "${base_url}/${path}"))
	h.clients = session.NewManager(session.ManagerOptions{
		BaseURL: testBase,
		Factory: func(user, token string) (session.Client, error) {
			return nil, errors.New("hub unreachable")
		},
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, resolveRequest("tutorials/nb01"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandlerUnresolvableTarget(t *testing.T) {
	h := newTestHandler(t, routing.NewRule("/tutorials/", "${base_url}/${nowhere}"))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, resolveRequest("tutorials/nb01"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func writeServerConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usher.yaml")
	data := `
base-url: ` + testBase + `
routes:
  - source: /tutorials/
    target: ${base_url}/nb/user/${user}/lab/tree/${path}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestServerSurface(t *testing.T) {
	c, err := config.Load(writeServerConfig(t))
	require.NoError(t, err)
	s, err := New(c)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.ServeHTTP(w, resolveRequest("tutorials/nb01"))
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t,
		testBase+"/nb/user/rachel/lab/tree/nb01",
		w.Header().Get("Location"))
}

func TestServerRejectsUnknownHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usher.yaml")
	data := `
base-url: ` + testBase + `
routes:
  - source: /notebooks/
    target: ${base_url}/${path}
    hooks: [teleport]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	c, err := config.Load(path)
	require.NoError(t, err)

	_, err = New(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}
