package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// OpenLabSession creates a kernel session in the user's lab and connects to
// its websocket channel for code execution.
func (c *client) OpenLabSession(ctx context.Context) (LabSession, error) {
	payload := map[string]any{
		"name":   "usher-" + uuid.New().String(),
		"path":   "usher.ipynb",
		"type":   "console",
		"kernel": map[string]any{"name": "python3"},
	}
	body, err := c.postForBody(ctx, c.labURL("api", "sessions"), payload)
	if err != nil {
		return nil, fmt.Errorf("creating lab session: %w", err)
	}
	sessionID := gjson.GetBytes(body, "id").String()
	kernelID := gjson.GetBytes(body, "kernel.id").String()
	if sessionID == "" || kernelID == "" {
		return nil, fmt.Errorf("lab session response missing ids: %s", body)
	}

	wsURL, err := websocketURL(c.labURL("api", "kernels", kernelID, "channels"))
	if err != nil {
		return nil, err
	}
	header := http.Header{"Authorization": []string{"Bearer " + c.token}}
	if xsrf := c.labXSRF(); xsrf != "" {
		header.Set("X-XSRFToken", xsrf)
	}
	dialer := websocket.Dialer{Jar: c.http.Jar}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to kernel channel: %w", err)
	}

	return &kernelSession{
		client:    c,
		conn:      conn,
		sessionID: sessionID,
		kernelID:  kernelID,
		log:       c.log.WithField("kernel", kernelID),
	}, nil
}

// postForBody is like PostJSON but returns the response body, needed for
// the session-creation response.
func (c *client) postForBody(ctx context.Context, url string, body any) ([]byte, error) {
	status, raw, err := c.sendJSONForBody(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("POST %s returned status %d", url, status)
	}
	return raw, nil
}

func websocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q for kernel channel", u.Scheme)
	}
	return u.String(), nil
}

type kernelSession struct {
	client    *client
	conn      *websocket.Conn
	sessionID string
	kernelID  string
	log       *log.Entry
}

type kernelHeader struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

type kernelMessage struct {
	Header       kernelHeader   `json:"header"`
	ParentHeader map[string]any `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
	Channel      string         `json:"channel"`
}

// RunPython sends an execute request over the kernel channel and collects
// the stream output until the kernel goes idle again.
func (s *kernelSession) RunPython(ctx context.Context, code string) (string, error) {
	msgID := uuid.New().String()
	request := kernelMessage{
		Header: kernelHeader{
			MsgID:    msgID,
			Username: s.client.user,
			Session:  s.sessionID,
			Date:     time.Now().UTC().Format(time.RFC3339),
			MsgType:  "execute_request",
			Version:  "5.3",
		},
		ParentHeader: map[string]any{},
		Metadata:     map[string]any{},
		Content: map[string]any{
			"code":             code,
			"silent":           false,
			"store_history":    false,
			"user_expressions": map[string]any{},
			"allow_stdin":      false,
			"stop_on_error":    true,
		},
		Channel: "shell",
	}

	// Execution is bounded even when the caller's context carries no
	// deadline: a kernel that stalls before going idle must fail the
	// resolution, not hang it.
	deadline := time.Now().Add(s.client.spawnTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetWriteDeadline(deadline)
	s.conn.SetReadDeadline(deadline)

	// Closing the connection is the only way to interrupt a blocked
	// read; Close is safe to call concurrently with ReadMessage.
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-watch:
		}
	}()

	if err := s.conn.WriteJSON(request); err != nil {
		return "", fmt.Errorf("sending execute request: %w", err)
	}

	var output strings.Builder
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("kernel execution canceled: %w", ctx.Err())
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return "", fmt.Errorf("kernel did not go idle within %s", s.client.spawnTimeout)
			}
			return "", fmt.Errorf("reading kernel reply: %w", err)
		}
		msg := gjson.ParseBytes(raw)
		if msg.Get("parent_header.msg_id").String() != msgID {
			continue
		}
		switch msg.Get("msg_type").String() {
		case "stream":
			output.WriteString(msg.Get("content.text").String())
		case "error":
			return "", fmt.Errorf(
				"kernel error %s: %s",
				msg.Get("content.ename").String(),
				msg.Get("content.evalue").String(),
			)
		case "status":
			if msg.Get("content.execution_state").String() == "idle" {
				return output.String(), nil
			}
		}
	}
}

// Close tears down the websocket and deletes the lab session.
func (s *kernelSession) Close() error {
	err := s.conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.client.http.Timeout)
	defer cancel()
	resp, derr := s.client.do(
		ctx, http.MethodDelete,
		s.client.labURL("api", "sessions", s.sessionID),
		nil,
		http.Header{"X-XSRFToken": []string{s.client.labXSRF()}},
	)
	if derr == nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		s.log.Debugf("deleting lab session failed: %v", derr)
	}
	return err
}
