// Package bus mirrors the conversation onto a websocket hub and accepts
// typed commands from it.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"proton/internal/assistant"
)

const (
	KindAssistant = "assistant"
	KindUser      = "user"
	KindError     = "error"
	KindLevel     = "level"
	KindStatus    = "status"
	KindClear     = "clear"
	// KindCommand is the only inbound kind: Content is executed as typed input.
	KindCommand = "command"
)

const writeTimeout = 5 * time.Second

type Status struct {
	Active    bool `json:"active"`
	Listening bool `json:"listening"`
}

type Message struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Kind    string    `json:"kind"`
	Content string    `json:"content,omitempty"`
	Source  string    `json:"source,omitempty"`
	Level   float64   `json:"level,omitempty"`
	Status  *Status   `json:"status,omitempty"`
	Time    time.Time `json:"time"`
}

// CommandFunc receives inbound command text.
type CommandFunc func(ctx context.Context, text string) error

type Options struct {
	Name      string
	Retry     time.Duration // wait between reconnects
	Queue     int
	OnCommand CommandFunc
}

// Client is an assistant.Sink. Feedback is queued and written by Run; while
// disconnected the oldest queued messages are dropped first.
type Client struct {
	url string
	opt Options

	out     chan Message
	dropped atomic.Int64
}

func New(url string, opt Options) *Client {
	if opt.Name == "" {
		opt.Name = "proton"
	}
	if opt.Retry <= 0 {
		opt.Retry = 3 * time.Second
	}
	if opt.Queue <= 0 {
		opt.Queue = 256
	}
	return &Client{url: url, opt: opt, out: make(chan Message, opt.Queue)}
}

func (c *Client) Dropped() int64 { return c.dropped.Load() }

// SetCommandHandler replaces Options.OnCommand. It must be called before Run.
func (c *Client) SetCommandHandler(fn CommandFunc) { c.opt.OnCommand = fn }

// Run keeps a connection to the hub until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("Bus connection lost", "url", c.url, "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opt.Retry):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, _, err := ws.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Info("Connected to bus", "url", c.url)

	readErr := make(chan error, 1)
	go func() { readErr <- c.readLoop(ctx, conn) }()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			conn.Close()
			<-readErr
			return ctx.Err()

		case err := <-readErr:
			return err

		case m := <-c.out:
			if err := c.write(conn, m); err != nil {
				conn.Close()
				<-readErr
				return err
			}
		}
	}
}

func (c *Client) write(conn *ws.Conn, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *Client) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isClosed(err) {
				return errors.New("closed by hub")
			}
			return fmt.Errorf("read: %w", err)
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("Bad bus message", "err", err)
			continue
		}
		if m.Kind != KindCommand || c.opt.OnCommand == nil {
			continue
		}
		if m.To != "" && m.To != c.opt.Name {
			continue
		}

		log.Debug("Bus command", "from", m.From, "text", m.Content)
		if err := c.opt.OnCommand(ctx, m.Content); err != nil {
			log.Warn("Bus command failed", "err", err)
		}
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}

func (c *Client) publish(m Message) {
	m.ID = uuid.NewString()
	m.From = c.opt.Name
	m.Time = time.Now()

	for {
		select {
		case c.out <- m:
			return
		default:
		}
		select {
		case <-c.out:
			c.dropped.Add(1)
		default:
		}
	}
}

func (c *Client) AssistantText(text string) {
	c.publish(Message{Kind: KindAssistant, Content: text})
}

func (c *Client) UserText(text string, origin assistant.Origin) {
	c.publish(Message{Kind: KindUser, Content: text, Source: origin.String()})
}

func (c *Client) Error(message string) {
	c.publish(Message{Kind: KindError, Content: message})
}

func (c *Client) Level(level float64) {
	c.publish(Message{Kind: KindLevel, Level: level})
}

func (c *Client) Status(s assistant.Status) {
	c.publish(Message{Kind: KindStatus, Status: &Status{Active: s.Active, Listening: s.Listening}})
}

func (c *Client) Clear() {
	c.publish(Message{Kind: KindClear})
}
