package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/minefleet/minefleet/pkg/logger"
)

// BotProfile is a saved connection profile
type BotProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	ServerIP  string    `json:"serverIp"`
	Port      int       `json:"port"`
	Password  string    `json:"password,omitempty"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileStorage handles storage of saved bot profiles
type ProfileStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewProfileStorage creates a new SQLite profile storage
func NewProfileStorage(db *sql.DB, log *logger.Logger) (*ProfileStorage, error) {
	storage := &ProfileStorage{
		db:     db,
		logger: log.Named("sqlite-profiles"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *ProfileStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_profiles (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			server_ip TEXT NOT NULL,
			port INTEGER NOT NULL,
			password TEXT,
			nickname TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bot_profiles table: %w", err)
	}
	return nil
}

// Create stores a new profile, assigning it an id, and returns the stored record
func (s *ProfileStorage) Create(profile *BotProfile) (*BotProfile, error) {
	stored := *profile
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO bot_profiles (id, username, server_ip, port, password, nickname, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.Username,
		stored.ServerIP,
		stored.Port,
		stored.Password,
		stored.Nickname,
		stored.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	return &stored, nil
}

// Get returns a profile by id, or nil when it does not exist
func (s *ProfileStorage) Get(id string) (*BotProfile, error) {
	row := s.db.QueryRow(
		`SELECT id, username, server_ip, port, password, nickname, created_at
		FROM bot_profiles WHERE id = ?`,
		id,
	)
	profile, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return profile, nil
}

// GetAll returns all profiles ordered by creation time
func (s *ProfileStorage) GetAll() ([]*BotProfile, error) {
	rows, err := s.db.Query(
		`SELECT id, username, server_ip, port, password, nickname, created_at
		FROM bot_profiles ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*BotProfile
	for rows.Next() {
		profile, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// Delete removes a profile by id. Deleting an unknown id is a no-op.
func (s *ProfileStorage) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM bot_profiles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

func scanProfile(scan func(dest ...any) error) (*BotProfile, error) {
	var profile BotProfile
	var password sql.NullString
	var createdAt string

	if err := scan(
		&profile.ID,
		&profile.Username,
		&profile.ServerIP,
		&profile.Port,
		&password,
		&profile.Nickname,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if password.Valid {
		profile.Password = password.String
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	profile.CreatedAt = ts

	return &profile, nil
}
