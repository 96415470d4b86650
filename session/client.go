package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// DefaultHTTPTimeout bounds individual HTTP calls to the platform.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultSpawnTimeout bounds the wait for a spawning lab to become
	// ready.
	DefaultSpawnTimeout = 90 * time.Second
)

// Client is the session capability handed to hooks through the bundle. All
// calls act on behalf of one user with that user's delegated token.
type Client interface {
	// User returns the name of the user the client acts for.
	User() string

	// BaseURL returns the platform base URL the client talks to.
	BaseURL() string

	// AuthToHub establishes an authenticated hub session.
	AuthToHub(ctx context.Context) error

	// AuthToLab establishes an authenticated session against the user's
	// running lab, capturing the lab XSRF token.
	AuthToLab(ctx context.Context) error

	// LabStopped reports whether the user currently has no ready lab.
	LabStopped(ctx context.Context) (bool, error)

	// SpawnLab requests a new default lab for the user. It returns as
	// soon as the spawn is accepted; use WaitForLab to await readiness.
	SpawnLab(ctx context.Context) error

	// WaitForLab polls until the user's lab is ready, or fails once the
	// timeout is exceeded.
	WaitForLab(ctx context.Context, timeout time.Duration) error

	// OpenLabSession opens an execution session in the user's lab.
	OpenLabSession(ctx context.Context) (LabSession, error)

	// Head performs a HEAD request with the user's credentials and
	// returns the status code.
	Head(ctx context.Context, url string) (int, error)

	// GetJSON performs a GET request with the user's credentials and
	// returns the raw response body.
	GetJSON(ctx context.Context, url string) ([]byte, error)

	// PostJSON posts a JSON body with the user's credentials and the
	// captured lab XSRF token, returning the status code.
	PostJSON(ctx context.Context, url string, body any) (int, error)

	// PutJSON puts a JSON body with the user's credentials and the
	// captured lab XSRF token, returning the status code.
	PutJSON(ctx context.Context, url string, body any) (int, error)

	// Close releases the client's resources.
	Close() error
}

// LabSession is an open execution context inside the user's lab.
type LabSession interface {
	// RunPython executes a code fragment in the lab kernel and returns
	// its accumulated stream output.
	RunPython(ctx context.Context, code string) (string, error)

	// Close shuts down the execution session.
	Close() error
}

// ClientOptions configures a platform client.
type ClientOptions struct {
	BaseURL      string
	User         string
	Token        string
	HTTPTimeout  time.Duration
	SpawnTimeout time.Duration

	// Transport overrides the HTTP transport, used by tests.
	Transport http.RoundTripper
}

type client struct {
	base         *url.URL
	user         string
	token        string
	http         *http.Client
	spawnTimeout time.Duration
	log          *log.Entry
}

// NewClient creates a platform client for one user.
func NewClient(o ClientOptions) (Client, error) {
	base, err := url.Parse(o.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", o.BaseURL, err)
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.SpawnTimeout <= 0 {
		o.SpawnTimeout = DefaultSpawnTimeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &client{
		base:  base,
		user:  o.User,
		token: o.Token,
		http: &http.Client{
			Timeout:   o.HTTPTimeout,
			Jar:       jar,
			Transport: o.Transport,
		},
		spawnTimeout: o.SpawnTimeout,
		log:          log.WithField("user", o.User),
	}, nil
}

func (c *client) User() string    { return c.user }
func (c *client) BaseURL() string { return c.base.String() }

func (c *client) hubURL(parts ...string) string {
	return c.endpoint(append([]string{"nb", "hub"}, parts...)...)
}

func (c *client) labURL(parts ...string) string {
	return c.endpoint(append([]string{"nb", "user", c.user}, parts...)...)
}

func (c *client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

func (c *client) do(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.http.Do(req)
}

func (c *client) AuthToHub(ctx context.Context) error {
	c.log.Debug("logging in to hub")
	resp, err := c.do(ctx, http.MethodGet, c.hubURL("home"), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("hub login returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) AuthToLab(ctx context.Context) error {
	c.log.Debug("authenticating to lab")
	resp, err := c.do(ctx, http.MethodGet, c.labURL("lab"), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("lab login returned status %d", resp.StatusCode)
	}
	return nil
}

// labXSRF returns the lab _xsrf cookie. It is read from the jar at call
// time; the jar is safe for concurrent use, so resolutions sharing this
// client need no further synchronization.
func (c *client) labXSRF() string {
	return c.xsrfFor(c.labURL("lab"))
}

// xsrfFor digs the _xsrf cookie for an endpoint out of the cookie jar.
func (c *client) xsrfFor(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == "_xsrf" {
			return cookie.Value
		}
	}
	return ""
}

func (c *client) LabStopped(ctx context.Context) (bool, error) {
	body, err := c.GetJSON(ctx, c.hubURL("api", "users", c.user))
	if err != nil {
		return false, err
	}
	// A missing servers entry means no lab at all; otherwise the lab is
	// up once any server reports ready.
	stopped := true
	gjson.GetBytes(body, "servers").ForEach(func(_, server gjson.Result) bool {
		if server.Get("ready").Bool() {
			stopped = false
			return false
		}
		return true
	})
	return stopped, nil
}

func (c *client) SpawnLab(ctx context.Context) error {
	c.log.Debug("spawning default lab")
	// The default spawn: currently recommended image in the medium
	// size, which is how the tutorial notebooks are set up to run.
	body := map[string]any{
		"image_class": "recommended",
		"size":        "medium",
	}
	status, err := c.PostJSON(ctx, c.hubURL("api", "users", c.user, "server"), body)
	if err != nil {
		return err
	}
	// 400 means the server is already running, which is fine here.
	if status >= http.StatusBadRequest && status != http.StatusBadRequest {
		return fmt.Errorf("lab spawn returned status %d", status)
	}
	return nil
}

func (c *client) WaitForLab(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.spawnTimeout
	}
	c.log.Debugf("waiting up to %s for lab to become ready", timeout)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		stopped, err := c.LabStopped(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if stopped {
			return struct{}{}, fmt.Errorf("lab for %s not ready yet", c.user)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		return fmt.Errorf("lab for %s did not become ready within %s: %w", c.user, timeout, err)
	}
	return nil
}

func (c *client) Head(ctx context.Context, url string) (int, error) {
	resp, err := c.do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return body, nil
}

func (c *client) PostJSON(ctx context.Context, url string, body any) (int, error) {
	return c.sendJSON(ctx, http.MethodPost, url, body)
}

func (c *client) PutJSON(ctx context.Context, url string, body any) (int, error) {
	return c.sendJSON(ctx, http.MethodPut, url, body)
}

func (c *client) sendJSON(ctx context.Context, method, url string, body any) (int, error) {
	status, _, err := c.sendJSONForBody(ctx, method, url, body)
	return status, err
}

func (c *client) sendJSONForBody(ctx context.Context, method, url string, body any) (int, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	if xsrf := c.labXSRF(); xsrf != "" {
		header.Set("X-XSRFToken", xsrf)
	}
	resp, err := c.do(ctx, method, url, bytes.NewReader(encoded), header)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (c *client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
