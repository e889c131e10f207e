package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minefleet/minefleet/pkg/logger"
)

// frame is the wire representation of one protocol bridge message.
// Outbound frames carry Op, inbound frames carry Event.
type frame struct {
	Op    string `json:"op,omitempty"`
	Event string `json:"event,omitempty"`

	Username string  `json:"username,omitempty"`
	Text     string  `json:"text,omitempty"`
	Sender   string  `json:"sender,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Health   float64 `json:"health,omitempty"`
	Food     float64 `json:"food,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	Z        float64 `json:"z,omitempty"`
}

const (
	opLogin = "login"
	opChat  = "chat"
)

// WSDialer dials a protocol bridge over websocket
type WSDialer struct {
	eventBuffer int
	logger      *logger.Logger
}

// NewWSDialer creates a websocket protocol dialer. eventBuffer sets the
// capacity of each connection's event channel.
func NewWSDialer(eventBuffer int, log *logger.Logger) *WSDialer {
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	return &WSDialer{
		eventBuffer: eventBuffer,
		logger:      log.Named("protocol"),
	}
}

// Dial connects to the bridge for the given endpoint, announces the account
// identity, and starts the read loop. The returned Conn's event channel is
// closed when the socket drops.
func (d *WSDialer) Dial(ctx context.Context, endpoint Endpoint, creds Credentials) (Conn, error) {
	url := fmt.Sprintf("ws://%s/", endpoint.Addr())

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint.Addr(), err)
	}
	ws.SetReadLimit(1 << 20)

	conn := &wsConn{
		ws:     ws,
		events: make(chan Event, d.eventBuffer),
		logger: d.logger,
	}

	if err := conn.writeFrame(frame{Op: opLogin, Username: creds.Username}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("failed to send login frame: %w", err)
	}

	go conn.readLoop()

	return conn, nil
}

// wsConn is one live websocket protocol connection
type wsConn struct {
	ws     *websocket.Conn
	events chan Event
	logger *logger.Logger

	wmu    sync.Mutex // serializes websocket writes
	closed atomic.Bool
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

func (c *wsConn) SendChat(text string) error {
	if c.closed.Load() {
		return fmt.Errorf("connection closed")
	}
	return c.writeFrame(frame{Op: opChat, Text: text})
}

func (c *wsConn) Quit() {
	if c.closed.Swap(true) {
		return
	}
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quit"),
		time.Now().Add(500*time.Millisecond))
	c.wmu.Unlock()
	c.ws.Close()
}

func (c *wsConn) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop translates inbound frames to events until the socket drops, then
// emits a final end event and closes the event channel.
func (c *wsConn) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Swap(true) {
				c.ws.Close()
				c.events <- Event{Kind: EventEnd, Reason: "connection lost"}
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("Dropping malformed protocol frame", logger.Error(err))
			continue
		}

		ev, ok := decodeEvent(f)
		if !ok {
			c.logger.Debug("Unknown protocol event", logger.String("event", f.Event))
			continue
		}
		c.events <- ev

		// The bridge closes the socket after end; stop reading once seen.
		if ev.Kind == EventEnd {
			c.closed.Store(true)
			c.ws.Close()
			return
		}
	}
}

// decodeEvent maps an inbound frame to a protocol event
func decodeEvent(f frame) (Event, bool) {
	switch EventKind(f.Event) {
	case EventSpawn:
		return Event{Kind: EventSpawn}, true
	case EventHealth:
		return Event{Kind: EventHealth, Health: f.Health, Food: f.Food}, true
	case EventMove:
		return Event{Kind: EventMove, X: f.X, Y: f.Y, Z: f.Z}, true
	case EventChat:
		return Event{Kind: EventChat, Sender: f.Sender, Text: f.Text}, true
	case EventWhisper:
		return Event{Kind: EventWhisper, Sender: f.Sender, Text: f.Text}, true
	case EventKicked:
		return Event{Kind: EventKicked, Reason: f.Reason}, true
	case EventError:
		return Event{Kind: EventError, Reason: f.Reason}, true
	case EventEnd:
		return Event{Kind: EventEnd, Reason: f.Reason}, true
	default:
		return Event{}, false
	}
}
