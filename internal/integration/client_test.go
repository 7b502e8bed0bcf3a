package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"askboard/internal/app"
	"askboard/internal/config"
	"askboard/pkg/types"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// frame is a decoded server message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type ackData struct {
	Ack    int64 `json:"ack"`
	Result bool  `json:"result"`
}

// TestClient is a real-time client driving the server over a socket.
type TestClient struct {
	t      *testing.T
	conn   *websocket.Conn
	frames chan frame
	done   chan struct{}
	acks   int64
}

func Dial(t *testing.T, baseURL string) *TestClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	c := &TestClient{
		t:      t,
		conn:   conn,
		frames: make(chan frame, 100),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(c.Close)
	return c
}

func (c *TestClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		c.frames <- f
	}
}

// Emit sends one event without an ack id.
func (c *TestClient) Emit(event string, data interface{}) {
	c.t.Helper()
	c.emit(event, data, nil)
}

func (c *TestClient) emit(event string, data interface{}, ack *int64) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	env := types.Envelope{Event: event, Data: raw, Ack: ack}
	require.NoError(c.t, c.conn.WriteJSON(env))
}

// CheckSession asks whether code exists and returns the answer along with
// every frame delivered before it.
func (c *TestClient) CheckSession(code string) (bool, []frame) {
	c.t.Helper()
	id := atomic.AddInt64(&c.acks, 1)
	c.emit(types.EventCheckSession, types.CodeRequest{Code: code}, &id)

	var before []frame
	deadline := time.After(waitTimeout)
	for {
		select {
		case f := <-c.frames:
			if f.Event != types.EventAck {
				before = append(before, f)
				continue
			}
			var ack ackData
			require.NoError(c.t, json.Unmarshal(f.Data, &ack))
			if ack.Ack == id {
				return ack.Result, before
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for ack %d", id)
			return false, nil
		case <-c.done:
			c.t.Fatal("connection closed while waiting for ack")
			return false, nil
		}
	}
}

// Sync waits until everything this client sent so far has been processed
// and returns the frames that arrived meanwhile.
func (c *TestClient) Sync() []frame {
	c.t.Helper()
	_, before := c.CheckSession("sync00")
	return before
}

// Join joins code and waits for the join to be applied.
func (c *TestClient) Join(code string) {
	c.t.Helper()
	c.Emit(types.EventJoinSession, types.CodeRequest{Code: code})
	require.Empty(c.t, c.Sync())
}

func (c *TestClient) Submit(code, text string) {
	c.t.Helper()
	c.Emit(types.EventSubmitQuestion, types.SubmitRequest{Code: code, Text: text})
}

func (c *TestClient) Delete(code, id string) {
	c.t.Helper()
	c.Emit(types.EventDeleteQuestion, types.DeleteRequest{Code: code, QuestionID: id})
}

// ReceiveEvent waits for the next frame and requires it to be event.
func (c *TestClient) ReceiveEvent(event string) frame {
	c.t.Helper()
	select {
	case f := <-c.frames:
		require.Equal(c.t, event, f.Event)
		return f
	case <-time.After(waitTimeout):
		c.t.Fatalf("timed out waiting for %s", event)
	case <-c.done:
		c.t.Fatalf("connection closed while waiting for %s", event)
	}
	return frame{}
}

func (c *TestClient) Close() {
	_ = c.conn.Close()
}

// testServer is a running application with its own blacklist and audit db.
type testServer struct {
	app       *app.Application
	baseURL   string
	auditPath string
	stopped   bool
}

func startServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	dir := t.TempDir()

	blacklist := filepath.Join(dir, "blacklist.txt")
	require.NoError(t, os.WriteFile(blacklist, []byte("spam-word\nBadWord\n"), 0o600))

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.StaticDir = ""
	cfg.Filter.BlacklistPath = blacklist
	cfg.Audit.Path = filepath.Join(dir, "audit.db")
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, application.Serve(context.Background(), ln))

	s := &testServer{app: application, baseURL: "http://" + application.Addr(), auditPath: cfg.Audit.Path}
	t.Cleanup(s.stop)
	return s
}

func (s *testServer) stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.app.Stop(ctx)
}

func (s *testServer) postJSON(t *testing.T, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.baseURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (s *testServer) generateCode(t *testing.T) string {
	t.Helper()
	resp, body := s.postJSON(t, "/generate-code", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.True(t, types.IsValidCode(out.Code))
	return out.Code
}

func (s *testServer) questions(t *testing.T, code string) []types.Question {
	t.Helper()
	resp, err := http.Get(s.baseURL + "/api/questions/" + code)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var qs []types.Question
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&qs))
	return qs
}

func (s *testServer) liveConnections(t *testing.T) int {
	t.Helper()
	resp, err := http.Get(s.baseURL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health struct {
		Connections int `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	return health.Connections
}

func questionOf(t *testing.T, f frame) types.QuestionPayload {
	t.Helper()
	var q types.QuestionPayload
	require.NoError(t, json.Unmarshal(f.Data, &q))
	return q
}
