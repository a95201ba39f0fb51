package bus_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proton/internal/assistant"
	"proton/internal/bus"
)

type hub struct {
	t        *testing.T
	upgrader ws.Upgrader
	received chan bus.Message
	conns    chan *ws.Conn
}

func newHub(t *testing.T) (*hub, string) {
	h := &hub{
		t:        t,
		received: make(chan bus.Message, 64),
		conns:    make(chan *ws.Conn, 4),
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.t.Errorf("upgrade: %v", err)
		return
	}
	h.conns <- conn
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var m bus.Message
		if err := json.Unmarshal(data, &m); err != nil {
			h.t.Errorf("unmarshal: %v", err)
			return
		}
		h.received <- m
	}
}

func (h *hub) conn(t *testing.T) *ws.Conn {
	t.Helper()
	select {
	case c := <-h.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
		return nil
	}
}

func (h *hub) next(t *testing.T) bus.Message {
	t.Helper()
	select {
	case m := <-h.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return bus.Message{}
	}
}

func run(t *testing.T, c *bus.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestFeedbackIsPublished(t *testing.T) {
	h, url := newHub(t)
	c := bus.New(url, bus.Options{Name: "proton"})

	c.Status(assistant.Status{Active: true})
	c.UserText("hello", assistant.Voice)
	c.AssistantText("Hello there!")
	run(t, c)
	h.conn(t)

	m := h.next(t)
	assert.Equal(t, bus.KindStatus, m.Kind)
	assert.Equal(t, &bus.Status{Active: true}, m.Status)
	assert.Equal(t, "proton", m.From)
	assert.NotEmpty(t, m.ID)

	m = h.next(t)
	assert.Equal(t, bus.KindUser, m.Kind)
	assert.Equal(t, "voice", m.Source)
	assert.Equal(t, "hello", m.Content)

	m2 := h.next(t)
	assert.Equal(t, bus.KindAssistant, m2.Kind)
	assert.Equal(t, "Hello there!", m2.Content)
	assert.NotEqual(t, m.ID, m2.ID)
}

func TestInboundCommands(t *testing.T) {
	h, url := newHub(t)

	var (
		mu   sync.Mutex
		cmds []string
	)
	c := bus.New(url, bus.Options{Name: "proton", OnCommand: func(_ context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		cmds = append(cmds, text)
		return nil
	}})
	run(t, c)
	conn := h.conn(t)

	for _, m := range []bus.Message{
		{Kind: bus.KindAssistant, Content: "ignored"},
		{Kind: bus.KindCommand, To: "someone-else", Content: "ignored"},
		{Kind: bus.KindCommand, Content: "list"},
		{Kind: bus.KindCommand, To: "proton", Content: "open 1"},
	} {
		require.NoError(t, conn.WriteJSON(m))
	}
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("garbage")))
	require.NoError(t, conn.WriteJSON(bus.Message{Kind: bus.KindCommand, Content: "back"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cmds) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"list", "open 1", "back"}, cmds)
}

func TestReconnects(t *testing.T) {
	h, url := newHub(t)
	c := bus.New(url, bus.Options{Retry: 10 * time.Millisecond})
	run(t, c)

	first := h.conn(t)
	require.NoError(t, first.Close())

	h.conn(t)
	c.Error("microphone error")
	m := h.next(t)
	assert.Equal(t, bus.KindError, m.Kind)
	assert.Equal(t, "microphone error", m.Content)
}

func TestQueueDropsOldest(t *testing.T) {
	c := bus.New("ws://127.0.0.1:1/none", bus.Options{Queue: 2})

	c.Level(0.1)
	c.Level(0.2)
	c.Level(0.3)
	c.Clear()

	assert.EqualValues(t, 2, c.Dropped())
}
