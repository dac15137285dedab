package proc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/leeineian/jukebox/sys"
)

// Settings persists per-guild audio preferences and play history.
type Settings interface {
	LoadVolume(ctx context.Context, guildID snowflake.ID) (float64, bool)
	SaveVolume(ctx context.Context, guildID snowflake.ID, volume float64) error
	RecordPlay(ctx context.Context, guildID, userID snowflake.ID, source, title string, remote bool) error
}

// PlayRequest is a play command as issued by a user.
type PlayRequest struct {
	Source   string
	Times    string
	UserID   snowflake.ID
	Reporter Reporter
}

// SoundPlayer is one guild's voice session. Every command a user can issue
// against a session goes through it.
type SoundPlayer struct {
	guildID   snowflake.ID
	channelID snowflake.ID

	device   Device
	consumer *SoundConsumer
	resolver *ContentResolver
	cache    *DownloadCache
	gate     OrderGate
	settings Settings

	lastRecorded uuid.UUID

	// after is closed once the guild's previous session has finished tearing down.
	after <-chan struct{}

	lifeMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	gone      chan struct{}
}

type playerOptions struct {
	guildID   snowflake.ID
	channelID snowflake.ID
	device    Device
	streamer  Streamer
	clips     *ClipStore
	cache     *DownloadCache
	extractor Extractor
	volume    float64
	settings  Settings
	after     <-chan struct{}
}

func newSoundPlayer(o playerOptions) *SoundPlayer {
	p := &SoundPlayer{
		guildID:   o.guildID,
		channelID: o.channelID,
		device:    o.device,
		cache:     o.cache,
		resolver:  NewContentResolver(o.clips, o.cache, o.extractor),
		settings:  o.settings,
		after:     o.after,
		closed:    make(chan struct{}),
		gone:      make(chan struct{}),
	}
	p.consumer = NewSoundConsumer(o.device, o.streamer, o.volume, p.onEvent)
	p.consumer.Start()
	return p
}

func (p *SoundPlayer) GuildID() snowflake.ID   { return p.guildID }
func (p *SoundPlayer) ChannelID() snowflake.ID { return p.channelID }
func (p *SoundPlayer) Volume() float64         { return p.consumer.Volume() }
func (p *SoundPlayer) State() ConsumerState    { return p.consumer.State() }

// Closed is closed as soon as the session starts tearing down.
func (p *SoundPlayer) Closed() <-chan struct{} { return p.closed }

// Gone is closed once teardown has finished: the device is detached and the
// cache directory removed.
func (p *SoundPlayer) Gone() <-chan struct{} { return p.gone }

func (p *SoundPlayer) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Admit reserves the caller's place in the session's play order. It never
// blocks, so it can be taken on the goroutine that receives commands.
func (p *SoundPlayer) Admit() *Ticket {
	return p.gate.Enter()
}

// Play resolves and enqueues a request once every earlier admitted request
// has been enqueued. The ticket is always released.
func (p *SoundPlayer) Play(ctx context.Context, ticket *Ticket, req PlayRequest) (*Track, error) {
	defer ticket.Release()

	source, times := ParseTimes(req.Source, req.Times)
	if times <= 0 {
		return nil, stateErr("play", fmt.Errorf("%w: repeat count %d", ErrInvalidArgument, times))
	}
	if source == "" {
		return nil, stateErr("play", fmt.Errorf("%w: empty source", ErrInvalidArgument))
	}
	if p.after != nil {
		select {
		case <-p.after:
		case <-p.closed:
			return nil, stateErr("play", ErrSessionClosed)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := p.attach(ctx); err != nil {
		return nil, err
	}

	if err := ticket.Wait(ctx); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, stateErr("play", ErrSessionClosed)
	}

	res, err := p.resolver.Resolve(ctx, source, req.Reporter)
	if errors.Is(err, ErrSessionClosed) {
		return nil, stateErr("play", err)
	}
	if err != nil {
		return nil, err
	}

	t, err := NewTrack(Request{
		GuildID:   p.guildID,
		ChannelID: p.channelID,
		UserID:    req.UserID,
		Source:    res.Source,
		Reporter:  req.Reporter,
	}, res.Path, res.Remote, times, res.Meta)
	if err != nil {
		return nil, err
	}
	if err := p.consumer.Enqueue(t); err != nil {
		return nil, err
	}
	return t, nil
}

// attach joins the voice channel unless teardown has begun. Teardown waits
// for an attach in progress, so it always detaches what was attached.
func (p *SoundPlayer) attach(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.isClosed() {
		return stateErr("play", ErrSessionClosed)
	}
	if err := p.device.Attach(ctx); err != nil {
		sys.LogVoice(sys.MsgVoiceAttachFail, p.guildID, err)
		return stateErr("play", fmt.Errorf("%w: %v", ErrDeviceNotAttached, err))
	}
	return nil
}

func (p *SoundPlayer) requireAttached(op string) error {
	if p.isClosed() || !p.device.Attached() {
		return stateErr(op, ErrDeviceNotAttached)
	}
	return nil
}

// SetVolume sets the volume (clamped to 0-100) and returns the applied value.
func (p *SoundPlayer) SetVolume(ctx context.Context, v float64) (float64, error) {
	if err := p.requireAttached("volume"); err != nil {
		return 0, err
	}
	gain := p.consumer.SetVolume(v)
	if p.settings != nil {
		if err := p.settings.SaveVolume(ctx, p.guildID, gain*100); err != nil {
			sys.LogVoice(sys.MsgVoiceVolumeSaveFail, p.guildID, err)
		}
	}
	return gain * 100, nil
}

func (p *SoundPlayer) Pause() error {
	if err := p.requireAttached("pause"); err != nil {
		return err
	}
	if p.consumer.Pause() {
		return nil
	}
	if p.consumer.State() == StatePaused {
		return stateErr("pause", ErrAlreadyPaused)
	}
	return stateErr("pause", ErrNothingPlaying)
}

func (p *SoundPlayer) Resume() error {
	if err := p.requireAttached("resume"); err != nil {
		return err
	}
	if p.consumer.Resume() {
		return nil
	}
	if p.consumer.State() == StatePlaying {
		return stateErr("resume", ErrNotPaused)
	}
	return stateErr("resume", ErrNothingPlaying)
}

func (p *SoundPlayer) Skip() error {
	if err := p.requireAttached("skip"); err != nil {
		return err
	}
	if !p.consumer.Skip() {
		return stateErr("skip", ErrNothingPlaying)
	}
	return nil
}

// NowPlaying returns the current track (nil when idle) and what is queued after it.
func (p *SoundPlayer) NowPlaying() (*Track, []*Track) {
	return p.consumer.Current(), p.consumer.Queued()
}

// Leave is the user-facing teardown; it fails when the session is not connected.
func (p *SoundPlayer) Leave(ctx context.Context) error {
	if err := p.requireAttached("leave"); err != nil {
		return err
	}
	return p.Teardown(ctx)
}

// Teardown stops playback, leaves the voice channel and closes the download
// cache, in that order. The session counts as closed from the moment it starts,
// so waiting plays give up instead of downloading. Later calls do nothing.
func (p *SoundPlayer) Teardown(ctx context.Context) error {
	var errs []error
	p.closeOnce.Do(func() {
		p.lifeMu.Lock()
		close(p.closed)
		p.lifeMu.Unlock()

		if err := p.consumer.Close(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
			errs = append(errs, err)
		}
		if err := p.device.Detach(ctx); err != nil && !errors.Is(err, ErrDeviceNotAttached) {
			sys.LogVoice(sys.MsgVoiceDetachFail, p.guildID, err)
			errs = append(errs, err)
		}
		if err := p.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		close(p.gone)
		sys.LogVoice(sys.MsgVoiceSessionClosed, p.guildID)
	})
	return errors.Join(errs...)
}

// onEvent runs on the consumer goroutine.
func (p *SoundPlayer) onEvent(ev Event) {
	if ev.Kind != EventStarted {
		return
	}
	t := ev.Track
	sys.LogVoice(sys.MsgVoiceTrackStarted, t.Title(), p.guildID, ev.Remaining-1)
	if p.settings == nil || t.ID() == p.lastRecorded {
		return
	}
	p.lastRecorded = t.ID()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := t.Request()
	if err := p.settings.RecordPlay(ctx, p.guildID, req.UserID, req.Source, t.Title(), t.Remote()); err != nil {
		sys.LogVoice(sys.MsgVoiceHistoryFail, p.guildID, err)
	}
}
