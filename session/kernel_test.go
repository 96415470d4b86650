package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// newKernelSession connects a kernelSession to a stub kernel channel. The
// handler gets the server side of the websocket after the upgrade.
func newKernelSession(t *testing.T, spawnTimeout time.Duration, handler func(*websocket.Conn)) *kernelSession {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	c := &client{
		user:         "rachel",
		spawnTimeout: spawnTimeout,
		http:         &http.Client{},
		log:          log.WithField("user", "rachel"),
	}
	return &kernelSession{
		client:    c,
		conn:      conn,
		sessionID: "session-1",
		kernelID:  "kernel-1",
		log:       c.log,
	}
}

// reply sends a kernel message answering the given execute request.
func reply(t *testing.T, conn *websocket.Conn, parentID, msgType string, content map[string]any) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"msg_type":      msgType,
		"parent_header": map[string]any{"msg_id": parentID},
		"content":       content,
	})
	assert.NoError(t, err)
}

func TestRunPythonCollectsStreamOutput(t *testing.T) {
	s := newKernelSession(t, time.Minute, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msgID := gjson.GetBytes(raw, "header.msg_id").String()
		reply(t, conn, "other-request", "stream", map[string]any{"text": "ignored\n"})
		reply(t, conn, msgID, "status", map[string]any{"execution_state": "busy"})
		reply(t, conn, msgID, "stream", map[string]any{"text": "1\n"})
		reply(t, conn, msgID, "status", map[string]any{"execution_state": "idle"})
	})

	out, err := s.RunPython(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)
}

func TestRunPythonReportsKernelError(t *testing.T) {
	s := newKernelSession(t, time.Minute, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msgID := gjson.GetBytes(raw, "header.msg_id").String()
		reply(t, conn, msgID, "error", map[string]any{
			"ename": "ValueError", "evalue": "bad notebook",
		})
	})

	_, err := s.RunPython(context.Background(), "raise ValueError")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ValueError")
}

func TestRunPythonHonorsCancellation(t *testing.T) {
	// The stub kernel swallows the request and goes silent.
	s := newKernelSession(t, time.Minute, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := s.RunPython(ctx, "print(1)")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunPythonBoundsSilentKernel(t *testing.T) {
	s := newKernelSession(t, 100*time.Millisecond, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	start := time.Now()
	_, err := s.RunPython(context.Background(), "print(1)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not go idle")
	assert.Less(t, time.Since(start), 5*time.Second)
}
