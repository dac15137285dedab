package proc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func newTestConsumer(t *testing.T) (*SoundConsumer, *fakeStreamer, *fakeDevice, *eventLog) {
	t.Helper()
	dev := &fakeDevice{}
	streamer := newFakeStreamer()
	log := &eventLog{}
	c := NewSoundConsumer(dev, streamer, 100, log.record)
	c.Start()
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, streamer, dev, log
}

func TestConsumerPlaysRepeatsBeforeNextTrack(t *testing.T) {
	c, streamer, _, log := newTestConsumer(t)
	a := mustTrack(t, "a", 3)
	b := mustTrack(t, "b", 1)

	_ = c.Enqueue(a)
	_ = c.Enqueue(b)

	if !eventually(time.Second, func() bool { return log.kinds(EventFinished) == 4 }) {
		t.Fatalf("Expected 4 finished plays, got %d", log.kinds(EventFinished))
	}

	want := []string{a.Path(), a.Path(), a.Path(), b.Path()}
	got := streamer.Played()
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Play %d: Expected %s, got %s", i, want[i], got[i])
		}
	}
	if !eventually(time.Second, func() bool { return c.State() == StateIdle }) {
		t.Errorf("Expected idle after the queue drained, got %s", c.State())
	}
}

func TestConsumerSkipDropsRemainingRepeats(t *testing.T) {
	c, streamer, _, log := newTestConsumer(t)
	a := mustTrack(t, "a", 5)
	b := mustTrack(t, "b", 1)
	streamer.block[a.Path()] = true

	_ = c.Enqueue(a)
	_ = c.Enqueue(b)
	if !streamer.waitStarted(a.Path(), time.Second) {
		t.Fatal("a never started")
	}

	if !c.Skip() {
		t.Fatal("Expected Skip to report a playing track")
	}
	if !eventually(time.Second, func() bool { return log.kinds(EventFinished) == 1 }) {
		t.Fatal("b never finished")
	}

	played := streamer.Played()
	if len(played) != 2 || played[1] != b.Path() {
		t.Errorf("Expected a then b, got %v", played)
	}
	if log.kinds(EventSkipped) != 1 {
		t.Errorf("Expected 1 skip event, got %d", log.kinds(EventSkipped))
	}
}

func TestConsumerSkipWhenIdle(t *testing.T) {
	c, _, _, _ := newTestConsumer(t)
	if c.Skip() {
		t.Error("Expected Skip on an idle consumer to report nothing playing")
	}
	if c.Pause() || c.Resume() {
		t.Error("Expected Pause/Resume on an idle consumer to do nothing")
	}
	if c.State() != StateIdle {
		t.Errorf("Expected idle, got %s", c.State())
	}
}

func TestConsumerStreamFailureSkipsToNext(t *testing.T) {
	c, streamer, _, log := newTestConsumer(t)
	bad := mustTrack(t, "bad", 3)
	good := mustTrack(t, "good", 1)
	streamer.fail[bad.Path()] = true

	_ = c.Enqueue(bad)
	_ = c.Enqueue(good)

	if !eventually(time.Second, func() bool { return log.kinds(EventFinished) == 1 }) {
		t.Fatal("good never finished")
	}
	if n := log.kinds(EventFailed); n != 1 {
		t.Errorf("Expected 1 failure, got %d", n)
	}

	log.mu.Lock()
	var failure Event
	for _, ev := range log.events {
		if ev.Kind == EventFailed {
			failure = ev
		}
	}
	log.mu.Unlock()
	var pe *PlaybackError
	if !errors.As(failure.Err, &pe) || !errors.Is(failure.Err, ErrStreamFailure) {
		t.Errorf("Expected PlaybackError{ErrStreamFailure}, got %v", failure.Err)
	}
	if played := streamer.Played(); len(played) != 2 {
		t.Errorf("Expected failed track not to repeat, got %v", played)
	}
}

func TestConsumerAttachFailureSkipsTrack(t *testing.T) {
	c, streamer, dev, log := newTestConsumer(t)
	dev.attachErr = errors.New("no voice server")

	_ = c.Enqueue(mustTrack(t, "a", 1))
	if !eventually(time.Second, func() bool { return log.kinds(EventFailed) == 1 }) {
		t.Fatal("Expected the track to fail")
	}
	if len(streamer.Played()) != 0 {
		t.Error("Expected nothing to be streamed")
	}
}

func TestConsumerVolume(t *testing.T) {
	c, _, _, _ := newTestConsumer(t)

	tests := []struct {
		in, want float64
	}{
		{50, 0.5},
		{150, 1},
		{-10, 0},
		{0, 0},
		{100, 1},
	}
	for _, tt := range tests {
		if got := c.SetVolume(tt.in); got != tt.want {
			t.Errorf("SetVolume(%v): Expected gain %v, got %v", tt.in, tt.want, got)
		}
	}

	c.SetVolume(25)
	if got := c.Volume(); got != 25 {
		t.Errorf("Expected volume 25, got %v", got)
	}
}

func TestConsumerVolumeAppliesToPlayingStream(t *testing.T) {
	c, streamer, _, _ := newTestConsumer(t)
	a := mustTrack(t, "a", 1)
	streamer.block[a.Path()] = true

	_ = c.Enqueue(a)
	if !streamer.waitStarted(a.Path(), time.Second) {
		t.Fatal("a never started")
	}
	c.SetVolume(40)
	if got := c.controls.Gain(); got != 0.4 {
		t.Errorf("Expected live gain 0.4, got %v", got)
	}
}

func TestConsumerPauseResume(t *testing.T) {
	c, streamer, dev, log := newTestConsumer(t)
	a := mustTrack(t, "a", 1)

	// Pause before the stream gets to write its frame
	streamer.mu.Lock()
	_ = c.Enqueue(a)
	if !eventually(time.Second, func() bool { return c.State() == StatePlaying }) {
		streamer.mu.Unlock()
		t.Fatal("a never started")
	}
	if !c.Pause() {
		streamer.mu.Unlock()
		t.Fatal("Expected Pause to succeed")
	}
	streamer.mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	if c.State() != StatePaused {
		t.Errorf("Expected paused, got %s", c.State())
	}
	dev.mu.Lock()
	frames := dev.frames
	dev.mu.Unlock()
	if frames != 0 {
		t.Errorf("Expected no frames while paused, got %d", frames)
	}

	if !c.Resume() {
		t.Fatal("Expected Resume to succeed")
	}
	if !eventually(time.Second, func() bool { return log.kinds(EventFinished) == 1 }) {
		t.Error("Expected a to finish after resuming")
	}
}

func TestConsumerStop(t *testing.T) {
	c, streamer, _, log := newTestConsumer(t)

	// Idle stop is a no-op
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Expected idle Stop to succeed, got %v", err)
	}

	a := mustTrack(t, "a", 2)
	b := mustTrack(t, "b", 1)
	streamer.block[a.Path()] = true
	_ = c.Enqueue(a)
	_ = c.Enqueue(b)
	if !streamer.waitStarted(a.Path(), time.Second) {
		t.Fatal("a never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c.State() != StateIdle || len(c.Queued()) != 0 {
		t.Errorf("Expected idle with an empty queue, got %s with %d queued", c.State(), len(c.Queued()))
	}

	time.Sleep(20 * time.Millisecond)
	if played := streamer.Played(); len(played) != 1 {
		t.Errorf("Expected only a to have played, got %v", played)
	}
	if ev := log.last(); ev.Kind != EventSkipped {
		t.Errorf("Expected last event to be a skip, got %v", ev.Kind)
	}
}

func TestConsumerCloseRejectsEnqueue(t *testing.T) {
	c, _, _, _ := newTestConsumer(t)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	err := c.Enqueue(mustTrack(t, "a", 1))
	if !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
}
