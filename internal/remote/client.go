package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/squadsync/squadsync/internal/model"
)

const (
	dialTimeout   = 10 * time.Second
	dialBaseDelay = 500 * time.Millisecond
	dialMaxTries  = 4
)

// Client is a Channel over a WebSocket connection to the sync relay.
//
// The connection is established once, inside Subscribe. A broken read flips
// the client to disconnected and reports the error; there is no reconnect —
// the session falls back to local mode permanently.
type Client struct {
	url    string
	logger *slog.Logger

	writeMu   sync.Mutex
	conn      *ws.Conn
	connected atomic.Bool
}

// NewClient creates a client for the relay at url (ws:// or wss://).
func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{url: url, logger: logger}
}

// Connected reports whether the relay connection is up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Subscribe dials the relay (with bounded backoff) and starts delivering
// snapshots. A dial that exhausts its retries is a subscription failure.
func (c *Client) Subscribe(onSnapshot func([]model.ScheduleEvent), onError func(error)) (func(), error) {
	dialCtx, cancelDial := context.WithTimeout(context.Background(), dialTimeout)
	defer cancelDial()

	backoff := retry.WithMaxRetries(dialMaxTries, retry.NewExponential(dialBaseDelay))
	err := retry.Do(dialCtx, backoff, func(ctx context.Context) error {
		conn, _, err := ws.Dial(ctx, c.url, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		c.conn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c.connected.Store(true)
	c.logger.Info("subscribed to sync relay", "url", c.url)

	ctx, cancel := context.WithCancel(context.Background())
	go c.readLoop(ctx, onSnapshot, onError)

	stop := func() {
		cancel()
		c.connected.Store(false)
		c.conn.Close(ws.StatusNormalClosure, "unsubscribe")
	}
	return stop, nil
}

func (c *Client) readLoop(ctx context.Context, onSnapshot func([]model.ScheduleEvent), onError func(error)) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.connected.Store(false)
			if ctx.Err() == nil {
				c.logger.Warn("relay connection lost", "error", err)
				onError(err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("bad frame from relay", "error", err)
			continue
		}
		if msg.Op != OpSnapshot {
			continue
		}
		onSnapshot(FlattenSnapshot(msg.Events))
	}
}

func (c *Client) send(ctx context.Context, msg Message) error {
	if !c.connected.Load() {
		return ErrUnavailable
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, ws.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Create pushes one full record.
func (c *Client) Create(ctx context.Context, event model.ScheduleEvent) error {
	return c.send(ctx, Message{Op: OpSet, Event: &event})
}

// Update pushes per-id, per-field partial writes.
func (c *Client) Update(ctx context.Context, patches map[string]map[string]any) error {
	return c.send(ctx, Message{Op: OpPatch, Patches: patches})
}

// Delete removes records by writing a null marker at each id.
func (c *Client) Delete(ctx context.Context, ids []string) error {
	patches := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		patches[id] = nil
	}
	return c.send(ctx, Message{Op: OpPatch, Patches: patches})
}
