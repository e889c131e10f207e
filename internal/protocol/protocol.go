// Package protocol wraps the native game-server connection behind a small
// dial/send/event surface. The supervisor consumes only the Dialer and Conn
// interfaces; the concrete client in this package speaks JSON frames over a
// websocket to a protocol bridge.
package protocol

import (
	"context"
	"fmt"
)

// Endpoint identifies a remote game server
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the host:port form of the endpoint
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Credentials carries the account identity used to join the server.
// Password is the in-game login password (sent as a chat command after
// spawn), not a transport-level secret.
type Credentials struct {
	Username string
	Password string
}

// EventKind discriminates protocol events
type EventKind string

const (
	EventSpawn   EventKind = "spawn"
	EventHealth  EventKind = "health"
	EventMove    EventKind = "move"
	EventChat    EventKind = "chat"
	EventWhisper EventKind = "whisper"
	EventKicked  EventKind = "kicked"
	EventError   EventKind = "error"
	EventEnd     EventKind = "end"
)

// Event is one asynchronous protocol notification. Only the fields relevant
// to the Kind are populated.
type Event struct {
	Kind EventKind

	// health
	Health float64
	Food   float64

	// move
	X, Y, Z float64

	// chat / whisper
	Sender string
	Text   string

	// kicked / end / error
	Reason string
}

// Conn is one live protocol connection
type Conn interface {
	// SendChat sends a chat message or slash command through the connection
	SendChat(text string) error

	// Quit closes the connection. The event channel is closed after any
	// in-flight events are delivered.
	Quit()

	// Events returns the channel of asynchronous protocol events. The
	// channel is closed when the connection ends for any reason.
	Events() <-chan Event
}

// Dialer establishes protocol connections
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint, creds Credentials) (Conn, error)
}
