package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/sys"
)

// VoiceDevice is a Device backed by a disgo voice connection.
type VoiceDevice struct {
	client    *bot.Client
	guildID   snowflake.ID
	channelID snowflake.ID

	mu       sync.Mutex
	conn     voice.Conn
	provider *frameProvider
}

func NewVoiceDevice(client *bot.Client, guildID, channelID snowflake.ID) *VoiceDevice {
	return &VoiceDevice{client: client, guildID: guildID, channelID: channelID}
}

func (d *VoiceDevice) Attach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return nil
	}

	conn := d.client.VoiceManager.CreateConn(d.guildID)
	joinCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := conn.Open(joinCtx, d.channelID, false, true); err != nil {
		conn.Close(context.Background())
		return err
	}

	d.provider = &frameProvider{frames: make(chan []byte, 10), closed: make(chan struct{})}
	conn.SetOpusFrameProvider(d.provider)
	conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)
	d.conn = conn
	return nil
}

func (d *VoiceDevice) Detach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}

	d.provider.Close()
	d.setProviderSafe(nil)
	d.conn.SetSpeaking(ctx, 0)
	d.conn.Close(ctx)
	d.conn = nil
	d.provider = nil
	return nil
}

// setProviderSafe clears the frame provider, recovering if the connection is already gone.
func (d *VoiceDevice) setProviderSafe(p voice.OpusFrameProvider) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice("Recovered from panic in SetOpusFrameProvider: %v", r)
		}
	}()
	d.conn.SetOpusFrameProvider(p)
}

func (d *VoiceDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

func (d *VoiceDevice) WriteFrame(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	p := d.provider
	d.mu.Unlock()
	if p == nil {
		return ErrDeviceNotAttached
	}
	select {
	case p.frames <- frame:
		return nil
	case <-p.closed:
		return ErrDeviceNotAttached
	case <-ctx.Done():
		return ctx.Err()
	}
}

// frameProvider feeds queued Opus frames to the voice connection, which pulls
// one every 20ms. An empty queue yields silence.
type frameProvider struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case f := <-p.frames:
		return f, nil
	case <-p.closed:
		return nil, nil
	case <-time.After(20 * time.Millisecond):
		return nil, nil
	}
}

func (p *frameProvider) Close() {
	p.once.Do(func() { close(p.closed) })
}

// OnVoiceStateUpdate applies the vacancy policy to the guild's session.
func (j *Jukebox) OnVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID
	p := j.Session(guildID)
	if p == nil {
		return
	}

	client := event.Client()
	isBot := func(userID snowflake.ID) bool {
		m, ok := client.Caches.Member(guildID, userID)
		return ok && m.User.Bot
	}
	switch CheckVacancy(client.ID(), p.ChannelID(), p.device.Attached(), event.VoiceState, client.Caches.VoiceStates(guildID), isBot) {
	case BotDisconnected:
		sys.LogVoice(sys.MsgVoiceBotDisconnected, guildID)
	case Vacant:
		sys.LogVoice(sys.MsgVoiceVacant, guildID)
	default:
		return
	}
	_ = j.Vacate(context.Background(), guildID)
}

// UserChannel returns the voice channel a user is in, if any.
func UserChannel(client *bot.Client, guildID, userID snowflake.ID) (snowflake.ID, bool) {
	state, ok := client.Caches.VoiceState(guildID, userID)
	if !ok || state.ChannelID == nil {
		return 0, false
	}
	return *state.ChannelID, true
}
