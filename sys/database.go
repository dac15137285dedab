package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_audio (
			guild_id TEXT PRIMARY KEY,
			volume REAL NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT,
			remote INTEGER DEFAULT 0,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history (guild_id, played_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Guild Audio Settings ---

// GetGuildVolume returns the stored volume (0-100) for a guild and whether one was stored.
func GetGuildVolume(ctx context.Context, guildID snowflake.ID) (float64, bool, error) {
	var volume float64
	err := DB.QueryRowContext(ctx, "SELECT volume FROM guild_audio WHERE guild_id = ?", guildID.String()).Scan(&volume)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return volume, true, nil
}

func SetGuildVolume(ctx context.Context, guildID snowflake.ID, volume float64) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO guild_audio (guild_id, volume) VALUES (?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET volume = excluded.volume, updated_at = CURRENT_TIMESTAMP
	`, guildID.String(), volume)
	return err
}

// --- Play History ---

type PlayRecord struct {
	ID       int64
	GuildID  snowflake.ID
	UserID   snowflake.ID
	Source   string
	Title    string
	Remote   bool
	PlayedAt time.Time
}

func AddPlayRecord(ctx context.Context, r *PlayRecord) error {
	remote := 0
	if r.Remote {
		remote = 1
	}
	playedAt := r.PlayedAt
	if playedAt.IsZero() {
		playedAt = time.Now()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO play_history (guild_id, user_id, source, title, remote, played_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.GuildID.String(), r.UserID.String(), r.Source, r.Title, remote, playedAt.UTC())
	return err
}

// GetRecentPlays returns the latest plays for a guild, newest first.
func GetRecentPlays(ctx context.Context, guildID snowflake.ID, limit int) ([]*PlayRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT id, guild_id, user_id, source, COALESCE(title, ''), remote, played_at
		FROM play_history WHERE guild_id = ? ORDER BY played_at DESC, id DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PlayRecord
	for rows.Next() {
		r := &PlayRecord{}
		var gid, uid string
		var remote int
		if err := rows.Scan(&r.ID, &gid, &uid, &r.Source, &r.Title, &remote, &r.PlayedAt); err != nil {
			return nil, err
		}
		r.GuildID, _ = snowflake.Parse(gid)
		r.UserID, _ = snowflake.Parse(uid)
		r.Remote = remote == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

func GetPlayCount(ctx context.Context, guildID snowflake.ID) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM play_history WHERE guild_id = ?", guildID.String()).Scan(&count)
	return count, err
}

// AudioStore exposes the guild audio tables to the voice engine.
type AudioStore struct{}

func (AudioStore) LoadVolume(ctx context.Context, guildID snowflake.ID) (float64, bool) {
	v, ok, err := GetGuildVolume(ctx, guildID)
	if err != nil {
		LogDatabase("Failed to load volume for guild %s: %v", guildID, err)
		return 0, false
	}
	return v, ok
}

func (AudioStore) SaveVolume(ctx context.Context, guildID snowflake.ID, volume float64) error {
	return SetGuildVolume(ctx, guildID, volume)
}

func (AudioStore) RecordPlay(ctx context.Context, guildID, userID snowflake.ID, source, title string, remote bool) error {
	return AddPlayRecord(ctx, &PlayRecord{
		GuildID: guildID,
		UserID:  userID,
		Source:  source,
		Title:   title,
		Remote:  remote,
	})
}

