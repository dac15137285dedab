package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const DefaultTimeFormat = "15:04:05"

var (
	infoColor     = color.New(color.FgHiBlack)
	debugColor    = color.New(color.FgHiBlue)
	warnColor     = color.New(color.FgHiYellow)
	errorColor    = color.New(color.FgHiRed)
	fatalColor    = color.New(color.FgHiRed, color.Bold)
	databaseColor = color.New(color.FgHiBlack)
	voiceColor    = color.New(color.FgMagenta)
	cacheColor    = color.New(color.FgHiMagenta)
	presenceColor = color.New(color.FgHiCyan)

	IsSilent  = false
	LogToFile = false

	// Global default logger
	Logger *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	var err error

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := "jukebox.log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, logFile)
		}
	}

	// Force colors to be enabled even if writing to a file/pipe avoids detection
	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// LogFatal panics after logging so deferred cleanup in main still runs.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogCache(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "cache"))
}

func LogPresence(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "presence"))
}

// --- Custom Slog Handler ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format(DefaultTimeFormat)
	levelStr := "DEBUG"
	levelColor := debugColor

	switch {
	case r.Level >= slog.LevelError+4:
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	case r.Level >= slog.LevelInfo:
		levelStr = "INFO"
		levelColor = infoColor
	}

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	// Output: 15:04:05 [INFO] [COMPONENT] Message
	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		// Level tag is only shown for non-INFO component records
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(compColor, fmt.Sprintf("[%s] %s", component, r.Message)))
	} else {
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, fmt.Sprintf("[%s] %s", levelStr, r.Message)))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "VOICE":
		return voiceColor
	case "CACHE":
		return cacheColor
	case "PRESENCE":
		return presenceColor
	default:
		return color.New(color.FgCyan)
	}
}

// colorizeWithResets re-applies the outer colour after every reset code in text,
// so nested colouring inside a component message does not cut the line short.
func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	modifiedText := strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq)
	return c.Sprint(modifiedText)
}

// @src
const (
	// Configuration
	MsgConfigFailedToLoad = "Failed to load config: %v"
	MsgConfigMissingToken = "DISCORD_TOKEN is not set in .env file"

	// Data layer
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"

	// Command Registry
	MsgLoaderSyncCommands       = "Syncing commands (%s mode)..."
	MsgLoaderUpToDate           = "Commands are up to date. (Hash: %s)"
	MsgLoaderProdStarting       = "Registering commands globally..."
	MsgLoaderProdFail           = "failed to register global commands: %w"
	MsgLoaderProdRegistered     = "Registered global command: %s"
	MsgLoaderDevStarting        = "Registering commands to guild: %s"
	MsgLoaderDevFail            = "Failed to register guild commands: %v"
	MsgLoaderDevRegistered      = "Registered guild command: %s"
	MsgLoaderDevGlobalClear     = "Clearing global commands..."
	MsgLoaderDevGlobalClearFail = "Failed to clear global commands: %v"
	MsgLoaderCleanup            = "Clearing stale commands from guild %s"
	MsgLoaderPanicRecovered     = "Recovered from panic: %v"
	MsgDaemonStarting           = "Starting..."
	MsgGenericError             = "%v"

	// Bot Lifecycle
	MsgBotStarting     = "Starting %s..."
	MsgBotReady        = "%s is ready! (ID: %s) (PID: %d) (%dms)"
	MsgBotShutdown     = "Shutting down %s..."
	MsgBotRegisterFail = "Command registration failed: %v"
)

// @voice
const (
	// System logs
	MsgVoiceSessionCreated   = "Session created in guild %s (channel %s)"
	MsgVoiceSessionClosed    = "Session closed in guild %s"
	MsgVoiceAttachFail       = "Failed to join voice in guild %s: %v"
	MsgVoiceDetachFail       = "Failed to leave voice in guild %s: %v"
	MsgVoiceTrackStarted     = "Playing %s in guild %s (%d left)"
	MsgVoiceTrackFailed      = "Playback of %s failed: %v"
	MsgVoiceVacant           = "No humans left in guild %s, leaving"
	MsgVoiceBotDisconnected  = "Bot disconnected by external event in guild %s"
	MsgVoiceVolumeSaveFail   = "Failed to save volume for guild %s: %v"
	MsgVoiceHistoryFail      = "Failed to record play for guild %s: %v"
	MsgVoiceStatusUpdateFail = "Failed to update progress message: %v"
	MsgVoiceRespondFail      = "Failed to respond to interaction: %v"
	MsgVoiceMetadataMissing  = "Metadata for %s is missing: %s"
	MsgVoiceClipIndexFail    = "Failed to index clips in %s: %v"

	// User-facing messages
	ErrVoiceNotInChannel   = "You need to be in a voice channel first."
	ErrVoiceNotConnected   = "I'm not connected to a voice channel."
	ErrVoiceNothingPlaying = "Nothing is playing right now."
	ErrVoiceAlreadyPaused  = "Playback is already paused."
	ErrVoiceNotPaused      = "Playback isn't paused."
	ErrVoiceInvalidTimes   = "The repeat count has to be a positive number."
	ErrVoiceInvalidVolume  = "Volume has to be a number."
	ErrVoiceClipNotFound   = "I couldn't find a clip with that name."
	ErrVoiceBadLink        = "I can't play that kind of link."
	ErrVoiceDownloadFailed = "The download failed. Try again in a bit."
	ErrVoiceMetadataFailed = "That link is missing information I need to play it."
	ErrVoiceJoinFailed     = "I couldn't join your voice channel."
	ErrVoiceNoSessions     = "The voice system isn't ready yet."
	ErrVoiceHistoryFailed  = "Failed to fetch play history."
	MsgVoiceQueueEmpty     = "The queue is empty."
	MsgVoiceNoClips        = "No clips found."
	MsgVoiceNoHistory      = "Nothing has been played here yet."
)

// @cache
const (
	MsgCachePurged       = "Purged %d cached files from %s"
	MsgCachePurgeFail    = "Failed to purge %s: %v"
	MsgCacheDownloadDone = "Downloaded %s to %s"
	MsgCacheDownloadFail = "Download of %s failed: %v"
	MsgCacheStartupWipe  = "Failed to clean audio cache: %v"
)

// @presence
const (
	MsgPresenceRotated    = "Presence set to %q (next in %v)"
	MsgPresenceUpdateFail = "Failed to update presence: %v"
)
