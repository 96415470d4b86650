// Package hooktest provides test doubles for hook and session interfaces.
package hooktest

import (
	"context"
	"time"

	"github.com/sciplat/usher/routing"
	"github.com/sciplat/usher/session"
)

// Hook is a scripted hook for tests. Calls are counted; Result and Err are
// returned as configured.
type Hook struct {
	FName   string
	Result  routing.HookResult
	Err     error
	Calls   int
	Bundles []*routing.Bundle
}

func (h *Hook) Name() string { return h.FName }

func (h *Hook) Run(ctx context.Context, b *routing.Bundle) (routing.HookResult, error) {
	h.Calls++
	h.Bundles = append(h.Bundles, b.Clone())
	return h.Result, h.Err
}

// Client is a scripted session capability. The F-prefixed fields configure
// the responses; the remaining fields record what happened.
type Client struct {
	FUser    string
	FBaseURL string

	FLabStopped    bool
	FLabStoppedErr error
	FAuthHubErr    error
	FAuthLabErr    error
	FSpawnErr      error
	FWaitErr       error

	// FHeadStatus maps URLs to HEAD status codes; URLs not present
	// return 404.
	FHeadStatus map[string]int

	// FPostStatus and FPutStatus are returned for writes; zero means 200.
	FPostStatus int
	FPutStatus  int

	FSession    *LabSession
	FSessionErr error

	HubAuths  int
	LabAuths  int
	Spawned   int
	Waited    int
	HeadURLs  []string
	PostURLs  []string
	PostBodys []any
	PutURLs   []string
	PutBodys  []any
}

var _ session.Client = &Client{}

func (c *Client) User() string    { return c.FUser }
func (c *Client) BaseURL() string { return c.FBaseURL }

func (c *Client) AuthToHub(context.Context) error {
	c.HubAuths++
	return c.FAuthHubErr
}

func (c *Client) AuthToLab(context.Context) error {
	c.LabAuths++
	return c.FAuthLabErr
}

func (c *Client) LabStopped(context.Context) (bool, error) {
	return c.FLabStopped, c.FLabStoppedErr
}

func (c *Client) SpawnLab(context.Context) error {
	c.Spawned++
	// A successful spawn leaves the lab running for later checks.
	if c.FSpawnErr == nil {
		c.FLabStopped = false
	}
	return c.FSpawnErr
}

func (c *Client) WaitForLab(context.Context, time.Duration) error {
	c.Waited++
	return c.FWaitErr
}

func (c *Client) OpenLabSession(context.Context) (session.LabSession, error) {
	if c.FSessionErr != nil {
		return nil, c.FSessionErr
	}
	if c.FSession == nil {
		c.FSession = &LabSession{}
	}
	return c.FSession, nil
}

func (c *Client) Head(ctx context.Context, url string) (int, error) {
	c.HeadURLs = append(c.HeadURLs, url)
	if status, ok := c.FHeadStatus[url]; ok {
		return status, nil
	}
	return 404, nil
}

func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	return nil, nil
}

func (c *Client) PostJSON(ctx context.Context, url string, body any) (int, error) {
	c.PostURLs = append(c.PostURLs, url)
	c.PostBodys = append(c.PostBodys, body)
	if c.FPostStatus == 0 {
		return 200, nil
	}
	return c.FPostStatus, nil
}

func (c *Client) PutJSON(ctx context.Context, url string, body any) (int, error) {
	c.PutURLs = append(c.PutURLs, url)
	c.PutBodys = append(c.PutBodys, body)
	if c.FPutStatus == 0 {
		return 200, nil
	}
	return c.FPutStatus, nil
}

func (c *Client) Close() error { return nil }

// LabSession is a scripted execution session. RunPython returns FOutput and
// FErr and records the executed code.
type LabSession struct {
	FOutput string
	FErr    error
	Code    []string
	Closed  int
}

var _ session.LabSession = &LabSession{}

func (s *LabSession) RunPython(ctx context.Context, code string) (string, error) {
	s.Code = append(s.Code, code)
	return s.FOutput, s.FErr
}

func (s *LabSession) Close() error {
	s.Closed++
	return nil
}
