package bots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minefleet/minefleet/internal/config"
	"github.com/minefleet/minefleet/internal/protocol"
	"github.com/minefleet/minefleet/internal/websocket"
	"github.com/minefleet/minefleet/pkg/logger"
)

// senderSystem attributes supervisor-generated chat log records
const senderSystem = "System"

// WebSocketServer is the push channel the manager broadcasts through
type WebSocketServer interface {
	Broadcast(message *websocket.Message)
}

// ChatLogStore persists chat log records
type ChatLogStore interface {
	Append(msg *ChatMessage) error
}

// Manager supervises the bot fleet. It is the sole mutator of the registry:
// every lifecycle transition for a bot id runs under that entry's lock, so
// transitions for one id are strictly sequential while distinct ids proceed
// in parallel. Status and chat events are republished to observers through
// the push channel and chat events are persisted to the log store.
type Manager struct {
	registry *registry
	dialer   protocol.Dialer
	wsServer WebSocketServer
	logStore ChatLogStore
	logger   *logger.Logger

	dialTimeout    time.Duration
	reconnectDelay time.Duration
	loginCommand   string
	loginDelay     time.Duration
	outboundSender string

	responder      *Responder
	responderDelay time.Duration

	// emitCh decouples broadcasting and log persistence from the protocol
	// event path. Sends are non-blocking: a stalled consumer drops
	// messages instead of delaying transitions.
	emitCh chan emitItem

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type emitItem struct {
	msg *websocket.Message
	log *ChatMessage
}

// NewManager creates a bot fleet manager and starts its emit worker
func NewManager(cfg config.MinecraftConfig, dialer protocol.Dialer, wsServer WebSocketServer, logStore ChatLogStore, log *logger.Logger) *Manager {
	m := &Manager{
		registry:       newRegistry(),
		dialer:         dialer,
		wsServer:       wsServer,
		logStore:       logStore,
		logger:         log.Named("bots"),
		dialTimeout:    time.Duration(cfg.DialTimeoutSecs) * time.Second,
		reconnectDelay: time.Duration(cfg.ReconnectDelaySecs) * time.Second,
		loginCommand:   cfg.LoginCommand,
		loginDelay:     time.Duration(cfg.LoginDelayMs) * time.Millisecond,
		outboundSender: cfg.OutboundSender,
		responderDelay: time.Duration(cfg.Responder.DelayMs) * time.Millisecond,
		emitCh:         make(chan emitItem, 512),
		stopCh:         make(chan struct{}),
	}
	if cfg.Responder.Enabled {
		m.responder = NewResponder(cfg.Responder.Trigger, cfg.Responder.Command)
	}

	m.wg.Add(1)
	go m.emitWorker()

	return m
}

// Stop tears down every session: cancels pending reconnect timers, closes
// live connections, and stops the emit worker.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping bot manager")
		for _, e := range m.registry.list() {
			e.mu.Lock()
			e.cancelReconnectLocked()
			e.gen++
			e.dialing = false
			if e.conn != nil {
				e.conn.Quit()
				e.conn = nil
			}
			e.status = StatusOffline
			e.health, e.food = 0, 0
			e.publishLocked()
			e.mu.Unlock()
		}
		close(m.stopCh)
		m.wg.Wait()
		m.logger.Info("Bot manager stopped")
	})
}

// Connect registers the config and starts connecting asynchronously. It
// returns ErrAlreadyConnected when a live connection or in-flight dial
// already exists for the id; connection progress is observed through the
// push channel, not the return value.
func (m *Manager) Connect(cfg BotConfig) error {
	for {
		e := m.registry.getOrCreate(cfg.ID)
		e.mu.Lock()
		if e.removed {
			// Lost a race with permanent removal; the stale entry is on
			// its way out of the map, retry against a fresh one.
			e.mu.Unlock()
			continue
		}
		defer e.mu.Unlock()
		return m.connectLocked(e, cfg)
	}
}

// connectLocked performs the connecting transition. Callers hold e.mu.
func (m *Manager) connectLocked(e *entry, cfg BotConfig) error {
	if e.conn != nil || e.dialing {
		return ErrAlreadyConnected
	}

	e.cancelReconnectLocked()
	e.config = cfg
	e.status = StatusConnecting
	e.health, e.food = vitalsMax, vitalsMax
	e.position = Position{}
	e.lastErr = ""
	e.gen++
	e.dialing = true
	gen := e.gen

	st := e.publishLocked()
	m.emitStatus(st)
	m.emitSystemLog(cfg.ID, fmt.Sprintf("Connecting to %s...", cfg.Addr()))

	go m.dial(e, gen, cfg)
	return nil
}

// dial attempts the protocol connection for one connecting transition. The
// dial itself runs outside the entry lock; gen decides on completion whether
// the attempt still speaks for the entry.
func (m *Manager) dial(e *entry, gen uint64, cfg BotConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx,
		protocol.Endpoint{Host: cfg.Host, Port: cfg.Port},
		protocol.Credentials{Username: cfg.Username, Password: cfg.Password},
	)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen || e.removed {
		// Superseded while dialing; discard the result.
		if conn != nil {
			conn.Quit()
		}
		return
	}
	e.dialing = false

	if err != nil {
		e.status = StatusError
		e.lastErr = err.Error()
		e.health, e.food = 0, 0
		st := e.publishLocked()
		m.emitSystemLog(cfg.ID, fmt.Sprintf("Failed to connect: %v", err))
		m.emitStatus(st)
		m.scheduleReconnectLocked(e)
		return
	}

	e.conn = conn
	go m.runSession(e, gen, cfg.ID, conn)
}

// runSession drains one connection's protocol events into lifecycle
// transitions, preserving per-session order. It exits when the connection's
// event channel closes. Handlers for a superseded generation are no-ops, so
// the loop keeps the channel drained even after an explicit disconnect.
func (m *Manager) runSession(e *entry, gen uint64, botID string, conn protocol.Conn) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case protocol.EventSpawn:
			m.handleSpawn(e, gen)
		case protocol.EventHealth:
			m.handleVitals(e, gen, ev.Health, ev.Food)
		case protocol.EventMove:
			m.handleMove(e, gen, ev.X, ev.Y, ev.Z)
		case protocol.EventChat:
			m.handleInbound(e, gen, ev.Sender, ev.Text, ChatKindChat)
		case protocol.EventWhisper:
			m.handleInbound(e, gen, ev.Sender, ev.Text, ChatKindWhisper)
		case protocol.EventKicked:
			m.handleDrop(e, gen, fmt.Sprintf("Kicked: %s", ev.Reason))
		case protocol.EventError:
			m.handleSessionError(e, gen, ev.Reason)
		case protocol.EventEnd:
			reason := ev.Reason
			if reason == "" {
				reason = "unknown reason"
			}
			m.handleDrop(e, gen, fmt.Sprintf("Disconnected: %s", reason))
		}
	}
	m.logger.Debug("Session event loop ended", logger.String("bot_id", botID))
}

func (m *Manager) handleSpawn(e *entry, gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.removed {
		e.mu.Unlock()
		return
	}
	e.status = StatusOnline
	e.health, e.food = vitalsMax, vitalsMax
	st := e.publishLocked()
	id := e.config.ID
	password := e.config.Password
	m.emitSystemLog(id, "Connected successfully!")
	m.emitStatus(st)
	e.mu.Unlock()

	// Post-spawn login sequence: some servers require an in-game login
	// command shortly after spawning.
	if password != "" {
		time.AfterFunc(m.loginDelay, func() {
			m.sendLogin(e, gen, id, password)
		})
	}
}

func (m *Manager) sendLogin(e *entry, gen uint64, botID, password string) {
	e.mu.Lock()
	if e.gen != gen || e.removed || e.conn == nil {
		e.mu.Unlock()
		return
	}
	conn := e.conn
	e.mu.Unlock()

	if err := conn.SendChat(fmt.Sprintf(m.loginCommand, password)); err != nil {
		m.logger.Warn("Failed to send login command", logger.String("bot_id", botID), logger.Error(err))
		return
	}
	// The command itself is never logged; it carries the password.
	m.emitSystemLog(botID, "Executing login command...")
}

func (m *Manager) handleVitals(e *entry, gen uint64, health, food float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.removed {
		return
	}
	e.health, e.food = health, food
	if e.status == StatusOnline {
		m.emitStatus(e.publishLocked())
	}
}

func (m *Manager) handleMove(e *entry, gen uint64, x, y, z float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.removed {
		return
	}
	e.position = Position{X: x, Y: y, Z: z}
	if e.status == StatusOnline {
		m.emitStatus(e.publishLocked())
	}
}

// handleInbound logs an inbound chat or whisper and, for whispers, runs the
// auto-responder. The synthesized reply goes through the ordinary SendChat
// path after a short delay; the responder itself never touches session state.
func (m *Manager) handleInbound(e *entry, gen uint64, sender, text string, kind ChatKind) {
	e.mu.Lock()
	if e.gen != gen || e.removed {
		e.mu.Unlock()
		return
	}
	id := e.config.ID
	m.emitChatLog(id, sender, text, kind)
	e.mu.Unlock()

	if kind != ChatKindWhisper || m.responder == nil {
		return
	}
	if reply, ok := m.responder.React(sender, text); ok {
		time.AfterFunc(m.responderDelay, func() {
			m.SendChat(id, reply)
		})
	}
}

// handleSessionError records a protocol-reported error. A failure during the
// dial phase schedules recovery directly; an in-session failure is followed
// by an end event, which is the transition that schedules.
func (m *Manager) handleSessionError(e *entry, gen uint64, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.removed {
		return
	}
	e.status = StatusError
	e.lastErr = reason
	e.health, e.food = 0, 0
	st := e.publishLocked()
	m.emitSystemLog(e.config.ID, fmt.Sprintf("Error: %s", reason))
	m.emitStatus(st)
	if e.conn == nil && !e.dialing {
		m.scheduleReconnectLocked(e)
	}
}

// handleDrop performs the offline transition after a kick or connection end.
// It is idempotent per generation: when kicked and end both arrive, only the
// first takes effect.
func (m *Manager) handleDrop(e *entry, gen uint64, logLine string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.removed {
		return
	}
	e.gen++
	e.conn = nil
	e.dialing = false
	e.status = StatusOffline
	e.health, e.food = 0, 0
	e.position = Position{}
	st := e.publishLocked()
	m.emitSystemLog(e.config.ID, logLine)
	m.emitStatus(st)
	if e.config.AutoReconnect {
		m.scheduleReconnectLocked(e)
	}
}

// scheduleReconnect arms the reconnect timer for the entry. Only one timer
// exists per id; arming replaces any prior one. Callers hold e.mu.
func (m *Manager) scheduleReconnectLocked(e *entry) {
	if !e.config.AutoReconnect {
		return
	}
	e.cancelReconnectLocked()
	e.status = StatusReconnecting
	st := e.publishLocked()
	m.emitSystemLog(e.config.ID, fmt.Sprintf("Auto-reconnecting in %s...", m.reconnectDelay))
	m.emitStatus(st)

	id := e.config.ID
	e.timerGen++
	tg := e.timerGen
	e.timer = time.AfterFunc(m.reconnectDelay, func() {
		m.fireReconnect(id, tg)
	})
}

// fireReconnect is the reconnect timer callback. A timer whose generation
// was bumped after it started firing observes the mismatch under the entry
// lock and does nothing, so a cancelled timer can never start a dial.
func (m *Manager) fireReconnect(id string, tg uint64) {
	e, ok := m.registry.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.timerGen != tg {
		return
	}
	e.timer = nil
	if err := m.connectLocked(e, e.config); err != nil {
		m.emitSystemLog(id, fmt.Sprintf("Reconnection failed: %v", err))
	}
}

// Disconnect closes the bot's connection and cancels any pending reconnect.
// A temporary disconnect keeps the stored config for a later Reconnect; a
// permanent one deletes config and state entirely. Unknown ids are a no-op.
func (m *Manager) Disconnect(id string, permanent bool) {
	e, ok := m.registry.get(id)
	if !ok {
		return
	}

	e.mu.Lock()
	e.cancelReconnectLocked()
	e.gen++
	e.dialing = false
	if e.conn != nil {
		e.conn.Quit()
		e.conn = nil
	}
	e.status = StatusOffline
	e.health, e.food = 0, 0
	e.position = Position{}

	if permanent {
		e.removed = true
		e.mu.Unlock()
		m.registry.remove(id)
		m.logger.Info("Bot removed", logger.String("bot_id", id))
		return
	}

	st := e.publishLocked()
	m.emitStatus(st)
	e.mu.Unlock()
	m.logger.Info("Bot disconnected", logger.String("bot_id", id))
}

// Reconnect cancels any pending recovery, closes a live connection if one
// exists, re-enables auto-reconnect, and re-dials immediately with the
// stored config. Returns ErrConfigNotFound when the id has no stored config.
func (m *Manager) Reconnect(id string) error {
	e, ok := m.registry.get(id)
	if !ok {
		return ErrConfigNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return ErrConfigNotFound
	}

	e.cancelReconnectLocked()
	e.gen++
	e.dialing = false
	if e.conn != nil {
		e.conn.Quit()
		e.conn = nil
	}

	cfg := e.config
	cfg.AutoReconnect = true
	return m.connectLocked(e, cfg)
}

// SetAutoReconnect flips the auto-reconnect policy for a bot. Disabling it
// while a reconnect is pending cancels the timer and settles on offline.
func (m *Manager) SetAutoReconnect(id string, enabled bool) {
	e, ok := m.registry.get(id)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return
	}
	e.config.AutoReconnect = enabled
	if !enabled && e.timer != nil {
		e.cancelReconnectLocked()
		e.status = StatusOffline
		m.emitStatus(e.publishLocked())
	}
}

// SendChat forwards a chat message through the bot's live connection and
// logs it as outbound. With no live connection it logs a warning and drops
// the message; no protocol call is made.
func (m *Manager) SendChat(id, text string) {
	e, ok := m.registry.get(id)
	if !ok {
		m.logger.Warn("SendChat for unknown bot", logger.String("bot_id", id))
		return
	}
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		m.logger.Warn("SendChat with no live connection", logger.String("bot_id", id))
		return
	}

	if err := conn.SendChat(text); err != nil {
		m.logger.Warn("Failed to send chat", logger.String("bot_id", id), logger.Error(err))
		return
	}
	m.emitChatLog(id, m.outboundSender, text, ChatKindChat)
}

// GetStatus returns the current state of one tracked bot
func (m *Manager) GetStatus(id string) (BotStatus, bool) {
	e, ok := m.registry.get(id)
	if !ok {
		return BotStatus{}, false
	}
	st := e.published.Load()
	if st == nil {
		return BotStatus{}, false
	}
	return *st, true
}

// GetAllStatuses returns the state of every tracked bot, ordered by id
func (m *Manager) GetAllStatuses() []BotStatus {
	entries := m.registry.list()
	statuses := make([]BotStatus, 0, len(entries))
	for _, e := range entries {
		if st := e.published.Load(); st != nil {
			statuses = append(statuses, *st)
		}
	}
	return statuses
}

// Snapshot implements websocket.SnapshotProvider: the initial_status message
// handed to a freshly attached observer.
func (m *Manager) Snapshot() *websocket.Message {
	return &websocket.Message{
		Type: websocket.MessageTypeInitialStatus,
		Data: map[string]any{"bots": m.GetAllStatuses()},
	}
}

// emitWorker persists chat logs and forwards broadcasts, keeping storage and
// push-channel latency off the protocol event path.
func (m *Manager) emitWorker() {
	defer m.wg.Done()
	for {
		select {
		case item := <-m.emitCh:
			if item.log != nil && m.logStore != nil {
				if err := m.logStore.Append(item.log); err != nil {
					m.logger.Error("Failed to persist chat log",
						logger.String("bot_id", item.log.BotID), logger.Error(err))
				}
			}
			if m.wsServer != nil {
				m.wsServer.Broadcast(item.msg)
			}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) emit(item emitItem) {
	select {
	case m.emitCh <- item:
	default:
		m.logger.Warn("Emit buffer full, dropping message", logger.String("type", item.msg.Type))
	}
}

func (m *Manager) emitStatus(st BotStatus) {
	m.emit(emitItem{msg: &websocket.Message{
		Type: websocket.MessageTypeBotStatus,
		Data: map[string]any{"bot": st},
	}})
}

func (m *Manager) emitChatLog(botID, sender, content string, kind ChatKind) {
	msg := &ChatMessage{
		ID:        uuid.NewString(),
		BotID:     botID,
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Kind:      kind,
	}
	m.emit(emitItem{
		msg: &websocket.Message{
			Type: websocket.MessageTypeChatLog,
			Data: map[string]any{"log": msg},
		},
		log: msg,
	})
}

func (m *Manager) emitSystemLog(botID, content string) {
	m.emitChatLog(botID, senderSystem, content, ChatKindSystem)
}
