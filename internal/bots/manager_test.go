package bots

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/minefleet/internal/config"
	"github.com/minefleet/minefleet/internal/protocol"
	"github.com/minefleet/minefleet/internal/websocket"
	"github.com/minefleet/minefleet/pkg/logger"
)

// fakeConn is a scripted protocol connection. Tests push events through emit
// and inspect anything sent through SendChat.
type fakeConn struct {
	events chan protocol.Event

	mu      sync.Mutex
	sent    []string
	quitted bool

	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan protocol.Event, 64)}
}

func (c *fakeConn) SendChat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConn) Quit() {
	c.mu.Lock()
	c.quitted = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *fakeConn) Events() <-chan protocol.Event { return c.events }

func (c *fakeConn) emit(ev protocol.Event) { c.events <- ev }

// end delivers a final end event and closes the channel, mimicking a dropped
// connection.
func (c *fakeConn) end(reason string) {
	c.emit(protocol.Event{Kind: protocol.EventEnd, Reason: reason})
	c.closeOnce.Do(func() { close(c.events) })
}

func (c *fakeConn) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) wasQuit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quitted
}

// fakeDialer hands out fakeConns, or fails every dial when err is set. A
// non-nil gate blocks dials until it is closed.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	err   error
	gate  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint protocol.Endpoint, creds protocol.Credentials) (protocol.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	err := d.err
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// fakeBroadcaster records everything the manager pushes
type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []*websocket.Message
}

func (b *fakeBroadcaster) Broadcast(message *websocket.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, message)
}

func (b *fakeBroadcaster) messages() []*websocket.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*websocket.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// chatContents returns the contents of chat_log broadcasts for one bot,
// filtered by sender, in broadcast order.
func (b *fakeBroadcaster) chatContents(botID, sender string) []string {
	var out []string
	for _, msg := range b.messages() {
		if msg.Type != websocket.MessageTypeChatLog {
			continue
		}
		log, ok := msg.Data["log"].(*ChatMessage)
		if !ok || log.BotID != botID {
			continue
		}
		if sender != "" && log.Sender != sender {
			continue
		}
		out = append(out, log.Content)
	}
	return out
}

// fakeLogStore records appended chat log records
type fakeLogStore struct {
	mu   sync.Mutex
	logs []*ChatMessage
}

func (s *fakeLogStore) Append(msg *ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, msg)
	return nil
}

func (s *fakeLogStore) records() []*ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ChatMessage, len(s.logs))
	copy(out, s.logs)
	return out
}

func testConfig() config.MinecraftConfig {
	return config.MinecraftConfig{
		DefaultPort:        25565,
		DialTimeoutSecs:    5,
		ReconnectDelaySecs: 1,
		LoginCommand:       "/login %s",
		LoginDelayMs:       5,
		EventBufferSize:    16,
		OutboundSender:     "Me",
		Responder: config.ResponderConfig{
			Enabled: true,
			Trigger: "tpmekaro",
			Command: "/tpahere %s",
			DelayMs: 5,
		},
	}
}

func newTestManager(t *testing.T, d *fakeDialer) (*Manager, *fakeBroadcaster, *fakeLogStore) {
	t.Helper()
	b := &fakeBroadcaster{}
	s := &fakeLogStore{}
	m := NewManager(testConfig(), d, b, s, logger.NewNop())
	m.reconnectDelay = 30 * time.Millisecond
	t.Cleanup(m.Stop)
	return m, b, s
}

func testBotConfig(id string) BotConfig {
	return BotConfig{
		ID:            id,
		Username:      "steve",
		Host:          "mc.example.com",
		Port:          25565,
		Nickname:      "Steve",
		AutoReconnect: true,
	}
}

func requireStatus(t *testing.T, m *Manager, id string, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := m.GetStatus(id)
		return ok && st.Status == want
	}, time.Second, 2*time.Millisecond, "bot %s never reached status %s", id, want)
}

func TestConnectLifecycle(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))

	st, ok := m.GetStatus("bot-1")
	require.True(t, ok)
	assert.Equal(t, StatusConnecting, st.Status)
	assert.Equal(t, float64(vitalsMax), st.Health)
	assert.Equal(t, float64(vitalsMax), st.Food)

	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	d.lastConn().emit(protocol.Event{Kind: protocol.EventSpawn})

	requireStatus(t, m, "bot-1", StatusOnline)

	require.Eventually(t, func() bool {
		logs := b.chatContents("bot-1", senderSystem)
		return len(logs) >= 2
	}, time.Second, 2*time.Millisecond)
	logs := b.chatContents("bot-1", senderSystem)
	assert.Equal(t, "Connecting to mc.example.com:25565...", logs[0])
	assert.Equal(t, "Connected successfully!", logs[1])
}

func TestConnectRejectsDuplicate(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	d.lastConn().emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	assert.ErrorIs(t, m.Connect(testBotConfig("bot-1")), ErrAlreadyConnected)
}

func TestConcurrentConnectAdmitsExactlyOne(t *testing.T) {
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}
	m, _, _ := newTestManager(t, d)
	defer close(gate)

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Connect(testBotConfig("bot-1"))
		}()
	}
	wg.Wait()
	close(errs)

	var admitted, rejected int
	for err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, ErrAlreadyConnected)
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, callers-1, rejected)
	require.Eventually(t, func() bool { return d.dialCount() == 1 }, time.Second, 2*time.Millisecond)
}

func TestDialFailureTriggersAutoReconnect(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, b, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))

	// First attempt fails, a second one fires after the delay on its own.
	require.Eventually(t, func() bool { return d.dialCount() >= 2 }, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, line := range b.chatContents("bot-1", senderSystem) {
			if line == "Failed to connect: connection refused" {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestErrorRecoversToOnline(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	requireStatus(t, m, "bot-1", StatusReconnecting)

	// Let the next attempt succeed
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()

	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	d.lastConn().emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)
}

func TestKickGoesOfflineThenReconnects(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	first := d.lastConn()
	first.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	first.emit(protocol.Event{Kind: protocol.EventKicked, Reason: "banned"})
	requireStatus(t, m, "bot-1", StatusReconnecting)

	require.Eventually(t, func() bool { return d.dialCount() >= 2 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return d.lastConn() != first }, time.Second, 2*time.Millisecond)
	d.lastConn().emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	var sawKick bool
	for _, line := range b.chatContents("bot-1", senderSystem) {
		if line == "Kicked: banned" {
			sawKick = true
		}
	}
	assert.True(t, sawKick, "kick reason should appear in the system log")
}

func TestTemporaryDisconnectDoesNotReschedule(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	m.Disconnect("bot-1", false)
	requireStatus(t, m, "bot-1", StatusOffline)
	assert.True(t, conn.wasQuit())

	time.Sleep(3 * m.reconnectDelay)
	assert.Equal(t, 1, d.dialCount(), "explicit disconnect must not schedule a reconnect")

	// Config is retained: a manual reconnect still works
	require.NoError(t, m.Reconnect("bot-1"))
	require.Eventually(t, func() bool { return d.dialCount() == 2 }, time.Second, 2*time.Millisecond)
}

func TestPermanentDisconnectCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	requireStatus(t, m, "bot-1", StatusReconnecting)
	dials := d.dialCount()

	m.Disconnect("bot-1", true)

	time.Sleep(3 * m.reconnectDelay)
	assert.Equal(t, dials, d.dialCount(), "cancelled timer must never dial")

	_, ok := m.GetStatus("bot-1")
	assert.False(t, ok)
	assert.ErrorIs(t, m.Reconnect("bot-1"), ErrConfigNotFound)
}

func TestReconnectCancelsPendingTimer(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	requireStatus(t, m, "bot-1", StatusReconnecting)

	// The manual reconnect supersedes the pending timer
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	require.NoError(t, m.Reconnect("bot-1"))

	require.Eventually(t, func() bool { return d.dialCount() == 2 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	d.lastConn().emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	time.Sleep(3 * m.reconnectDelay)
	assert.Equal(t, 2, d.dialCount(), "the superseded timer must not dial")
}

func TestSetAutoReconnectCancelsTimer(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	requireStatus(t, m, "bot-1", StatusReconnecting)
	dials := d.dialCount()

	m.SetAutoReconnect("bot-1", false)
	requireStatus(t, m, "bot-1", StatusOffline)

	time.Sleep(3 * m.reconnectDelay)
	assert.Equal(t, dials, d.dialCount())
}

func TestSendChatWithoutConnectionIsDropped(t *testing.T) {
	d := &fakeDialer{}
	m, b, s := newTestManager(t, d)

	// Unknown bot and an offline bot both drop the message silently
	m.SendChat("ghost", "hello")

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)
	m.Disconnect("bot-1", false)
	requireStatus(t, m, "bot-1", StatusOffline)

	m.SendChat("bot-1", "hello")

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.sentMessages())
	assert.Empty(t, b.chatContents("bot-1", "Me"))
	for _, rec := range s.records() {
		assert.NotEqual(t, "hello", rec.Content)
	}
}

func TestSendChatLogsOutbound(t *testing.T) {
	d := &fakeDialer{}
	m, b, s := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	m.SendChat("bot-1", "hello world")

	require.Eventually(t, func() bool {
		sent := conn.sentMessages()
		return len(sent) == 1 && sent[0] == "hello world"
	}, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(b.chatContents("bot-1", "Me")) == 1
	}, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, rec := range s.records() {
			if rec.Sender == "Me" && rec.Content == "hello world" && rec.Kind == ChatKindChat {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestLoginCommandAfterSpawn(t *testing.T) {
	d := &fakeDialer{}
	m, b, s := newTestManager(t, d)

	cfg := testBotConfig("bot-1")
	cfg.Password = "hunter2"
	require.NoError(t, m.Connect(cfg))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})

	require.Eventually(t, func() bool {
		sent := conn.sentMessages()
		return len(sent) == 1 && sent[0] == "/login hunter2"
	}, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, line := range b.chatContents("bot-1", senderSystem) {
			if line == "Executing login command..." {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)

	// The password never reaches the chat log
	for _, rec := range s.records() {
		assert.NotContains(t, rec.Content, "hunter2")
	}
}

func TestWhisperResponderSendsReply(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	conn.emit(protocol.Event{Kind: protocol.EventWhisper, Sender: "Alice", Text: "tpmekaro Bob"})
	require.Eventually(t, func() bool {
		for _, sent := range conn.sentMessages() {
			if sent == "/tpahere Bob" {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)

	conn.emit(protocol.Event{Kind: protocol.EventWhisper, Sender: "Alice", Text: "tpmekaro"})
	require.Eventually(t, func() bool {
		for _, sent := range conn.sentMessages() {
			if sent == "/tpahere Alice" {
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
}

func TestPublicChatDoesNotTriggerResponder(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	conn.emit(protocol.Event{Kind: protocol.EventChat, Sender: "Alice", Text: "tpmekaro Bob"})

	require.Eventually(t, func() bool {
		return len(b.chatContents("bot-1", "Alice")) == 1
	}, time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.sentMessages())
}

func TestVitalsAndPositionUpdates(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	conn.emit(protocol.Event{Kind: protocol.EventHealth, Health: 14.5, Food: 18})
	conn.emit(protocol.Event{Kind: protocol.EventMove, X: 10, Y: 64, Z: -3})

	wantPos := Position{X: 10, Y: 64, Z: -3}
	require.Eventually(t, func() bool {
		st, ok := m.GetStatus("bot-1")
		return ok && st.Health == 14.5 && st.Food == 18 && st.Position == wantPos
	}, time.Second, 2*time.Millisecond)
}

func TestDisconnectResetsVitals(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	conn.emit(protocol.Event{Kind: protocol.EventHealth, Health: 12, Food: 9})
	require.Eventually(t, func() bool {
		st, ok := m.GetStatus("bot-1")
		return ok && st.Health == 12
	}, time.Second, 2*time.Millisecond)

	m.Disconnect("bot-1", false)

	st, ok := m.GetStatus("bot-1")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, st.Status)
	assert.Zero(t, st.Health)
	assert.Zero(t, st.Food)
}

func TestChatLogOrderingPerSession(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	const n = 25
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("msg-%02d", i)
		want = append(want, text)
		conn.emit(protocol.Event{Kind: protocol.EventChat, Sender: "Alice", Text: text})
	}

	require.Eventually(t, func() bool {
		return len(b.chatContents("bot-1", "Alice")) == n
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, want, b.chatContents("bot-1", "Alice"))
}

func TestChatLogOrderingWithInterleavedSessions(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	conns := make(map[string]*fakeConn)
	for _, id := range []string{"bot-1", "bot-2"} {
		require.NoError(t, m.Connect(testBotConfig(id)))
		require.Eventually(t, func() bool { return d.lastConn() != nil && d.lastConn() != conns["bot-1"] }, time.Second, 2*time.Millisecond)
		conns[id] = d.lastConn()
		conns[id].emit(protocol.Event{Kind: protocol.EventSpawn})
		requireStatus(t, m, id, StatusOnline)
	}

	const n = 20
	var wg sync.WaitGroup
	for id, conn := range conns {
		wg.Add(1)
		go func(id string, conn *fakeConn) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				conn.emit(protocol.Event{Kind: protocol.EventChat, Sender: "Alice", Text: fmt.Sprintf("%s-msg-%02d", id, i)})
			}
		}(id, conn)
	}
	wg.Wait()

	for id := range conns {
		require.Eventually(t, func() bool {
			return len(b.chatContents(id, "Alice")) == n
		}, time.Second, 2*time.Millisecond)

		want := make([]string, 0, n)
		for i := 0; i < n; i++ {
			want = append(want, fmt.Sprintf("%s-msg-%02d", id, i))
		}
		assert.Equal(t, want, b.chatContents(id, "Alice"), "per-session order for %s", id)
	}
}

func TestSnapshotMatchesStatuses(t *testing.T) {
	d := &fakeDialer{}
	m, _, _ := newTestManager(t, d)

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.NoError(t, m.Connect(testBotConfig("bot-2")))

	snap := m.Snapshot()
	require.Equal(t, websocket.MessageTypeInitialStatus, snap.Type)
	bots, ok := snap.Data["bots"].([]BotStatus)
	require.True(t, ok)
	assert.Equal(t, m.GetAllStatuses(), bots)
	assert.Len(t, bots, 2)
	assert.Equal(t, "bot-1", bots[0].ID)
	assert.Equal(t, "bot-2", bots[1].ID)
}

func TestEndAfterKickIsIgnored(t *testing.T) {
	d := &fakeDialer{}
	m, b, _ := newTestManager(t, d)

	cfg := testBotConfig("bot-1")
	cfg.AutoReconnect = false
	require.NoError(t, m.Connect(cfg))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	conn.emit(protocol.Event{Kind: protocol.EventKicked, Reason: "banned"})
	conn.end("connection reset")

	requireStatus(t, m, "bot-1", StatusOffline)
	time.Sleep(20 * time.Millisecond)

	var drops int
	for _, line := range b.chatContents("bot-1", senderSystem) {
		if line == "Kicked: banned" || line == "Disconnected: connection reset" {
			drops++
		}
	}
	assert.Equal(t, 1, drops, "only the first drop event takes effect")
}

func TestStopQuitsLiveConnections(t *testing.T) {
	d := &fakeDialer{}
	b := &fakeBroadcaster{}
	s := &fakeLogStore{}
	m := NewManager(testConfig(), d, b, s, logger.NewNop())
	m.reconnectDelay = 30 * time.Millisecond

	require.NoError(t, m.Connect(testBotConfig("bot-1")))
	require.Eventually(t, func() bool { return d.lastConn() != nil }, time.Second, 2*time.Millisecond)
	conn := d.lastConn()
	conn.emit(protocol.Event{Kind: protocol.EventSpawn})
	requireStatus(t, m, "bot-1", StatusOnline)

	m.Stop()
	assert.True(t, conn.wasQuit())

	st, ok := m.GetStatus("bot-1")
	require.True(t, ok)
	assert.Equal(t, StatusOffline, st.Status)
}
