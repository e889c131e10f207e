package bots

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a supervised bot session
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOnline       Status = "online"
	StatusReconnecting Status = "reconnecting"
	StatusOffline      Status = "offline"
	StatusError        Status = "error"
)

// ChatKind classifies chat log records
type ChatKind string

const (
	ChatKindChat    ChatKind = "chat"
	ChatKindWhisper ChatKind = "whisper"
	ChatKindSystem  ChatKind = "system"
)

// Protocol-defined maximum for health and food. Reported while the real
// values are unknown (connecting, freshly spawned).
const vitalsMax = 20

// BotConfig is the stored identity of one supervised session. Immutable once
// a connection starts, except AutoReconnect.
type BotConfig struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Password      string `json:"password,omitempty"`
	Nickname      string `json:"nickname"`
	AutoReconnect bool   `json:"autoReconnect"`
}

// Addr returns the host:port form of the configured endpoint
func (c BotConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Position is a bot's location in the world
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BotStatus is the externally visible state of one session
type BotStatus struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	ServerIP string   `json:"serverIp"`
	Status   Status   `json:"status"`
	Health   float64  `json:"health"`
	Food     float64  `json:"food"`
	Position Position `json:"position"`
	Error    string   `json:"error,omitempty"`
}

// ChatMessage is one immutable chat log record. Records outlive the session
// connection they came from; they belong to the log store.
type ChatMessage struct {
	ID        string    `json:"id"`
	BotID     string    `json:"botId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Kind      ChatKind  `json:"type"`
}
