package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/minefleet/minefleet/internal/bots"
	"github.com/minefleet/minefleet/pkg/logger"
)

// ChatLogStorage handles storage of chat log records
type ChatLogStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewChatLogStorage creates a new SQLite chat log storage
func NewChatLogStorage(db *sql.DB, log *logger.Logger) (*ChatLogStorage, error) {
	storage := &ChatLogStorage{
		db:     db,
		logger: log.Named("sqlite-chatlogs"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *ChatLogStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chat_logs (
			id TEXT PRIMARY KEY,
			bot_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			kind TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create chat_logs table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_logs_bot_id ON chat_logs(bot_id)`)
	if err != nil {
		return fmt.Errorf("failed to create bot_id index: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_logs_timestamp ON chat_logs(timestamp)`)
	if err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}

	return nil
}

// Append stores one chat log record. Records are append-only; nothing ever
// updates a stored row.
func (s *ChatLogStorage) Append(msg *bots.ChatMessage) error {
	_, err := s.db.Exec(
		`INSERT INTO chat_logs (id, bot_id, sender, content, timestamp, kind)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.BotID,
		msg.Sender,
		msg.Content,
		msg.Timestamp.Format(time.RFC3339Nano),
		string(msg.Kind),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat log: %w", err)
	}
	return nil
}

// GetByBot returns the most recent chat log records for a bot, oldest first
func (s *ChatLogStorage) GetByBot(botID string, limit int) ([]*bots.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, bot_id, sender, content, timestamp, kind
		FROM (
			SELECT id, bot_id, sender, content, timestamp, kind
			FROM chat_logs
			WHERE bot_id = ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC`,
		botID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat logs: %w", err)
	}
	defer rows.Close()

	var records []*bots.ChatMessage
	for rows.Next() {
		var msg bots.ChatMessage
		var timestamp, kind string
		if err := rows.Scan(&msg.ID, &msg.BotID, &msg.Sender, &msg.Content, &timestamp, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan chat log: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp: %w", err)
		}
		msg.Timestamp = ts
		msg.Kind = bots.ChatKind(kind)
		records = append(records, &msg)
	}
	return records, rows.Err()
}
