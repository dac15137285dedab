package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/leeineian/jukebox/sys"
)

type JukeboxConfig struct {
	ClipDir       string
	CacheDir      string
	DefaultVolume float64

	Extractor Extractor
	Streamer  Streamer
	Settings  Settings
	// NewDevice builds the audio sink for a guild's voice channel.
	NewDevice func(guildID, channelID snowflake.ID) Device
}

// Jukebox owns every guild's SoundPlayer.
type Jukebox struct {
	cfg   JukeboxConfig
	clips *ClipStore

	mu       sync.Mutex
	sessions map[snowflake.ID]*SoundPlayer
}

// NewJukebox wipes the cache root left by a previous run and indexes the clip directory.
func NewJukebox(cfg JukeboxConfig) (*Jukebox, error) {
	if cfg.NewDevice == nil || cfg.Streamer == nil || cfg.Extractor == nil {
		return nil, errors.New("jukebox needs a device factory, a streamer and an extractor")
	}
	if err := os.RemoveAll(cfg.CacheDir); err != nil {
		sys.LogCache(sys.MsgCacheStartupWipe, err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, err
	}

	clips := NewClipStore(cfg.ClipDir)
	if err := clips.Refresh(); err != nil {
		sys.LogVoice(sys.MsgVoiceClipIndexFail, cfg.ClipDir, err)
	}
	if err := clips.Watch(); err != nil {
		sys.LogVoice(sys.MsgVoiceClipIndexFail, cfg.ClipDir, err)
	}

	return &Jukebox{
		cfg:      cfg,
		clips:    clips,
		sessions: make(map[snowflake.ID]*SoundPlayer),
	}, nil
}

func (j *Jukebox) Clips() *ClipStore { return j.clips }

func (j *Jukebox) Session(guildID snowflake.ID) *SoundPlayer {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessions[guildID]
}

// Prepare returns the guild's session, creating it for channelID if needed.
// A session bound to another channel is torn down in the background and
// replaced; the replacement does not join voice until the old one has left.
// Prepare does not touch the network.
func (j *Jukebox) Prepare(guildID, channelID snowflake.ID) *SoundPlayer {
	j.mu.Lock()
	defer j.mu.Unlock()

	var after <-chan struct{}
	if p, ok := j.sessions[guildID]; ok {
		if p.ChannelID() == channelID && !p.isClosed() {
			return p
		}
		delete(j.sessions, guildID)
		after = p.Gone()
		sys.SafeGo(func() { _ = p.Teardown(context.Background()) })
	}

	volume := j.cfg.DefaultVolume
	if j.cfg.Settings != nil {
		if v, ok := j.cfg.Settings.LoadVolume(context.Background(), guildID); ok {
			volume = v
		}
	}

	p := newSoundPlayer(playerOptions{
		guildID:   guildID,
		channelID: channelID,
		device:    j.cfg.NewDevice(guildID, channelID),
		streamer:  j.cfg.Streamer,
		clips:     j.clips,
		cache:     NewDownloadCache(j.sessionCacheDir(guildID)),
		extractor: j.cfg.Extractor,
		volume:    volume,
		settings:  j.cfg.Settings,
		after:     after,
	})
	j.sessions[guildID] = p
	sys.LogVoice(sys.MsgVoiceSessionCreated, guildID, channelID)
	return p
}

// sessionCacheDir is unique per session, so a session being torn down never
// purges files its replacement has downloaded.
func (j *Jukebox) sessionCacheDir(guildID snowflake.ID) string {
	return filepath.Join(j.cfg.CacheDir, guildID.String(), uuid.NewString())
}

// Playing counts the sessions that are playing or paused.
func (j *Jukebox) Playing() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, p := range j.sessions {
		if p.State() != StateIdle {
			n++
		}
	}
	return n
}

// remove forgets p if it is still the guild's session.
func (j *Jukebox) remove(p *SoundPlayer) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sessions[p.GuildID()] != p {
		return false
	}
	delete(j.sessions, p.GuildID())
	return true
}

// Leave tears down the guild's session at a user's request.
func (j *Jukebox) Leave(ctx context.Context, guildID snowflake.ID) error {
	p := j.Session(guildID)
	if p == nil {
		return stateErr("leave", ErrDeviceNotAttached)
	}
	if err := p.Leave(ctx); err != nil {
		return err
	}
	j.remove(p)
	return nil
}

// Vacate tears down the guild's session without a user request, for example
// when nobody is left listening. A missing session counts as already vacated.
func (j *Jukebox) Vacate(ctx context.Context, guildID snowflake.ID) error {
	p := j.Session(guildID)
	if p == nil {
		return nil
	}
	j.remove(p)
	return p.Teardown(ctx)
}

// Shutdown tears down every session.
func (j *Jukebox) Shutdown(ctx context.Context) {
	j.mu.Lock()
	sessions := make([]*SoundPlayer, 0, len(j.sessions))
	for _, p := range j.sessions {
		sessions = append(sessions, p)
	}
	j.sessions = make(map[snowflake.ID]*SoundPlayer)
	j.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Teardown(ctx)
		}()
	}
	wg.Wait()
	j.clips.Close()
}
