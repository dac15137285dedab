package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Token            string
	GuildID          string
	DatabasePath     string
	ClipDir          string
	CacheDir         string
	DefaultVolume    float64
	ProgressInterval time.Duration
	Silent           bool
}

var GlobalConfig *Config

// Validate ensures the configuration is valid and meets requirements.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}

	// Basic Snowflake validation for GuildID if provided
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}

	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return fmt.Errorf("invalid DEFAULT_VOLUME: %v is outside 0-100", c.DefaultVolume)
	}

	overlap, err := dirsOverlap(c.ClipDir, c.CacheDir)
	if err != nil {
		return fmt.Errorf("invalid CLIP_DIR or CACHE_DIR: %w", err)
	}
	if overlap {
		return fmt.Errorf("CLIP_DIR and CACHE_DIR must not contain each other (cache is wiped on startup)")
	}

	return nil
}

// dirsOverlap reports whether a and b are the same directory or one lies inside the other.
func dirsOverlap(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return within(absA, absB) || within(absB, absA), nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, "jukebox.db")
	}

	clipDir := envOr("CLIP_DIR", filepath.Join("resources", "music", "audio"))
	cacheDir := envOr("CACHE_DIR", filepath.Join("resources", "music", "cache"))

	volume := 100.0
	if raw := strings.TrimSpace(os.Getenv("DEFAULT_VOLUME")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DEFAULT_VOLUME: %w", err)
		}
		volume = v
	}

	interval := time.Second
	if raw := strings.TrimSpace(os.Getenv("PROGRESS_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PROGRESS_INTERVAL: %w", err)
		}
		interval = d
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	cfg := &Config{
		Token:            os.Getenv("DISCORD_TOKEN"),
		GuildID:          os.Getenv("GUILD_ID"),
		DatabasePath:     fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", dbPath),
		ClipDir:          filepath.Clean(clipDir),
		CacheDir:         filepath.Clean(cacheDir),
		DefaultVolume:    volume,
		ProgressInterval: interval,
		Silent:           silent,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
