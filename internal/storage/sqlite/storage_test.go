package sqlite

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minefleet/minefleet/internal/bots"
	"github.com/minefleet/minefleet/pkg/logger"
)

func testDB(t *testing.T) *ProfileStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewProfileStorage(db, logger.NewNop())
	require.NoError(t, err)
	return storage
}

func testChatLogDB(t *testing.T) *ChatLogStorage {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewChatLogStorage(db, logger.NewNop())
	require.NoError(t, err)
	return storage
}

func TestProfileCreateAndGet(t *testing.T) {
	storage := testDB(t)

	created, err := storage.Create(&BotProfile{
		Username: "steve",
		ServerIP: "mc.example.com",
		Port:     25565,
		Password: "hunter2",
		Nickname: "Steve",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.False(t, created.CreatedAt.IsZero())

	got, err := storage.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "steve", got.Username)
	assert.Equal(t, "mc.example.com", got.ServerIP)
	assert.Equal(t, 25565, got.Port)
	assert.Equal(t, "hunter2", got.Password)
	assert.Equal(t, "Steve", got.Nickname)
}

func TestProfileGetUnknown(t *testing.T) {
	storage := testDB(t)

	got, err := storage.Get("no-such-id")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProfileGetAllOrdered(t *testing.T) {
	storage := testDB(t)

	// Insert directly with distinct created_at values so the ordering is
	// deterministic; Create stamps rows at second granularity.
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		_, err := storage.db.Exec(
			`INSERT INTO bot_profiles (id, username, server_ip, port, password, nickname, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			fmt.Sprintf("bot-%d", i),
			"mc.example.com",
			25565,
			"",
			fmt.Sprintf("Bot %d", i),
			base.Add(time.Duration(i)*time.Second).Format(time.RFC3339),
		)
		require.NoError(t, err)
	}

	profiles, err := storage.GetAll()
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	for i, p := range profiles {
		assert.Equal(t, fmt.Sprintf("bot-%d", i), p.Username)
	}
}

func TestProfileDelete(t *testing.T) {
	storage := testDB(t)

	created, err := storage.Create(&BotProfile{
		Username: "steve",
		ServerIP: "mc.example.com",
		Port:     25565,
		Nickname: "Steve",
	})
	require.NoError(t, err)

	require.NoError(t, storage.Delete(created.ID))

	got, err := storage.Get(created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Unknown id is a no-op
	assert.NoError(t, storage.Delete("no-such-id"))
}

func newChatMessage(botID, content string, ts time.Time) *bots.ChatMessage {
	return &bots.ChatMessage{
		ID:        uuid.NewString(),
		BotID:     botID,
		Sender:    "Alice",
		Content:   content,
		Timestamp: ts,
		Kind:      bots.ChatKindChat,
	}
}

func TestChatLogAppendAndGet(t *testing.T) {
	storage := testChatLogDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		msg := newChatMessage("bot-1", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, storage.Append(msg))
	}
	require.NoError(t, storage.Append(newChatMessage("bot-2", "other", base)))

	records, err := storage.GetByBot("bot-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), rec.Content)
		assert.Equal(t, "bot-1", rec.BotID)
	}
}

func TestChatLogLimitKeepsMostRecent(t *testing.T) {
	storage := testChatLogDB(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 10; i++ {
		msg := newChatMessage("bot-1", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, storage.Append(msg))
	}

	records, err := storage.GetByBot("bot-1", 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// The most recent three, oldest first
	assert.Equal(t, "msg-7", records[0].Content)
	assert.Equal(t, "msg-8", records[1].Content)
	assert.Equal(t, "msg-9", records[2].Content)
}

func TestChatLogUnknownBot(t *testing.T) {
	storage := testChatLogDB(t)

	records, err := storage.GetByBot("ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
