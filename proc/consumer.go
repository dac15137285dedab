package proc

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/leeineian/jukebox/sys"
)

// Device is the shared audio sink a session plays into.
type Device interface {
	// Attach joins the voice channel. Attaching an attached device is a no-op.
	Attach(ctx context.Context) error
	// Detach leaves the voice channel. Detaching a detached device is a no-op.
	Detach(ctx context.Context) error
	Attached() bool
	// WriteFrame queues one encoded frame, blocking while the device is behind.
	WriteFrame(ctx context.Context, frame []byte) error
}

// Streamer decodes the file at path and writes it to dev until the file ends
// or ctx is cancelled. It reads ctl for gain and pause state as it goes.
type Streamer interface {
	Stream(ctx context.Context, path string, ctl *Controls, dev Device) error
}

// Controls are the live playback knobs a Streamer consults per frame.
type Controls struct {
	gain atomic.Uint64

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewControls(gain float64) *Controls {
	c := &Controls{resume: make(chan struct{})}
	close(c.resume)
	c.SetGain(gain)
	return c
}

func (c *Controls) Gain() float64 { return math.Float64frombits(c.gain.Load()) }

func (c *Controls) SetGain(g float64) { c.gain.Store(math.Float64bits(g)) }

func (c *Controls) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controls) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return false
	}
	c.paused = true
	c.resume = make(chan struct{})
	return true
}

func (c *Controls) unpause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return false
	}
	c.paused = false
	close(c.resume)
	return true
}

// WaitResume blocks while paused.
func (c *Controls) WaitResume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.resume
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ConsumerState int

const (
	StateIdle ConsumerState = iota
	StatePlaying
	StatePaused
)

func (s ConsumerState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "idle"
	}
}

type EventKind int

const (
	EventStarted EventKind = iota
	EventFinished
	EventSkipped
	EventFailed
)

// Event reports a track transition. Remaining counts plays left including the current one.
type Event struct {
	Kind      EventKind
	Track     *Track
	Remaining int
	Err       error
}

type abandonReason int

const (
	abandonNone abandonReason = iota
	abandonSkip
	abandonStop
)

// SoundConsumer plays queued tracks one at a time on its own goroutine.
type SoundConsumer struct {
	queue    *PlaybackQueue
	device   Device
	streamer Streamer
	controls *Controls
	onEvent  func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once

	mu          sync.Mutex
	state       ConsumerState
	current     *Track
	cancelTrack context.CancelFunc
	abandon     abandonReason
	idle        chan struct{}
}

// NewSoundConsumer creates a consumer at the given volume (0-100). onEvent
// may be nil; it runs on the consumer goroutine.
func NewSoundConsumer(dev Device, streamer Streamer, volume float64, onEvent func(Event)) *SoundConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &SoundConsumer{
		queue:    NewPlaybackQueue(),
		device:   dev,
		streamer: streamer,
		controls: NewControls(clampVolume(volume) / 100),
		onEvent:  onEvent,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		idle:     idle,
	}
}

// Start launches the consumer goroutine. Later calls do nothing.
func (c *SoundConsumer) Start() {
	c.start.Do(func() {
		go c.run()
	})
}

func (c *SoundConsumer) run() {
	defer close(c.done)
	for {
		t, err := c.queue.Pop(c.ctx)
		if err != nil {
			return
		}
		c.play(t)
	}
}

func (c *SoundConsumer) play(t *Track) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = StatePlaying
	c.current = t
	c.cancelTrack = cancel
	c.abandon = abandonNone
	c.idle = make(chan struct{})
	c.mu.Unlock()

	c.emit(Event{Kind: EventStarted, Track: t, Remaining: t.Times()})

	err := c.device.Attach(ctx)
	if err == nil {
		err = c.streamer.Stream(ctx, t.Path(), c.controls, c.device)
	}

	c.mu.Lock()
	reason := c.abandon
	// A stream that returns because its context ended was abandoned, not broken
	if reason == abandonNone && c.ctx.Err() != nil {
		reason = abandonStop
	}
	if err == nil && reason == abandonNone && t.Times() > 1 {
		_ = c.queue.PushFront(t.remaining())
	}
	c.state = StateIdle
	c.current = nil
	c.cancelTrack = nil
	c.abandon = abandonNone
	c.controls.unpause()
	close(c.idle)
	c.mu.Unlock()

	switch {
	case reason != abandonNone:
		c.emit(Event{Kind: EventSkipped, Track: t, Remaining: t.Times()})
	case err != nil:
		perr := &PlaybackError{Path: t.Path(), Err: err}
		sys.LogVoice(sys.MsgVoiceTrackFailed, t.Title(), perr)
		c.emit(Event{Kind: EventFailed, Track: t, Remaining: t.Times(), Err: perr})
	default:
		c.emit(Event{Kind: EventFinished, Track: t, Remaining: t.Times() - 1})
	}
}

func (c *SoundConsumer) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// Enqueue appends t to the queue.
func (c *SoundConsumer) Enqueue(t *Track) error {
	if err := c.queue.Push(t); err != nil {
		return stateErr("enqueue", err)
	}
	return nil
}

// SetVolume clamps v to [0,100], applies it to the playing stream immediately
// and returns the resulting gain.
func (c *SoundConsumer) SetVolume(v float64) float64 {
	gain := clampVolume(v) / 100
	c.controls.SetGain(gain)
	return gain
}

// Volume returns the current volume on the 0-100 scale.
func (c *SoundConsumer) Volume() float64 {
	return c.controls.Gain() * 100
}

func (c *SoundConsumer) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return false
	}
	c.controls.pause()
	c.state = StatePaused
	return true
}

func (c *SoundConsumer) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePaused {
		return false
	}
	c.controls.unpause()
	c.state = StatePlaying
	return true
}

// Skip abandons the current track, including its remaining repeats, and
// moves on to the next queued track. It reports whether anything was playing.
func (c *SoundConsumer) Skip() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTrack == nil {
		return false
	}
	c.abandon = abandonSkip
	c.cancelTrack()
	return true
}

// Stop clears the queue, abandons the current track and waits for its stream
// to return. Stopping an idle consumer does nothing.
func (c *SoundConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.queue.Clear()
	if c.cancelTrack != nil {
		c.abandon = abandonStop
		c.cancelTrack()
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops playback and ends the consumer goroutine. Tracks enqueued
// afterwards are rejected.
func (c *SoundConsumer) Close(ctx context.Context) error {
	c.queue.Close()
	err := c.Stop(ctx)
	c.cancel()

	// Never started: there is no goroutine to wait for
	c.start.Do(func() { close(c.done) })
	select {
	case <-c.done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (c *SoundConsumer) State() ConsumerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *SoundConsumer) Current() *Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *SoundConsumer) Queued() []*Track {
	return c.queue.Snapshot()
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 100)
}
