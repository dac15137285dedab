package proc

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type fakeDevice struct {
	mu        sync.Mutex
	attached  bool
	attachErr error
	attaches  int
	detaches  int
	frames    int

	// detachGate, when set, holds Detach until it is closed.
	detachGate chan struct{}
}

func (d *fakeDevice) Attach(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attachErr != nil {
		return d.attachErr
	}
	if !d.attached {
		d.attaches++
	}
	d.attached = true
	return nil
}

func (d *fakeDevice) Detach(ctx context.Context) error {
	d.mu.Lock()
	gate := d.detachGate
	d.mu.Unlock()
	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		d.detaches++
	}
	d.attached = false
	return nil
}

func (d *fakeDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

func (d *fakeDevice) WriteFrame(ctx context.Context, frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	return nil
}

// fakeStreamer records every stream it is asked to play. A path listed in
// block plays until cancelled; a path listed in fail returns an error.
type fakeStreamer struct {
	mu     sync.Mutex
	played []string
	block  map[string]bool
	fail   map[string]bool
	gains  []float64

	started chan string
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		block:   map[string]bool{},
		fail:    map[string]bool{},
		started: make(chan string, 64),
	}
}

func (s *fakeStreamer) Stream(ctx context.Context, path string, ctl *Controls, dev Device) error {
	s.mu.Lock()
	s.played = append(s.played, path)
	s.gains = append(s.gains, ctl.Gain())
	block, fail := s.block[path], s.fail[path]
	s.mu.Unlock()
	select {
	case s.started <- path:
	default:
	}

	if fail {
		return errors.New("corrupt file")
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctl.WaitResume(ctx); err != nil {
		return err
	}
	return dev.WriteFrame(ctx, []byte{0xF8, 0xFF, 0xFE})
}

func (s *fakeStreamer) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

func (s *fakeStreamer) waitStarted(path string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case p := <-s.started:
			if p == path {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// fakeExtractor serves canned metadata and writes a small file on download.
// Downloads block on gate when it is set.
type fakeExtractor struct {
	meta      *Metadata
	infoErr   error
	dlErr     error
	gate      chan struct{}
	infoCalls atomic.Int32
	dlCalls   atomic.Int32
	progress  []DownloadProgress
	started   chan struct{}
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		meta: &Metadata{
			Title:     "Song",
			Uploader:  "Artist",
			Duration:  3 * time.Minute,
			Thumbnail: "https://img.example.com/song.jpg",
		},
		started: make(chan struct{}, 16),
	}
}

func (e *fakeExtractor) Info(ctx context.Context, link string) (*Metadata, error) {
	e.infoCalls.Add(1)
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	m := *e.meta
	return &m, nil
}

func (e *fakeExtractor) Download(ctx context.Context, link, dest string, progress func(DownloadProgress)) (string, error) {
	e.dlCalls.Add(1)
	select {
	case e.started <- struct{}{}:
	default:
	}

	path := dest + ".m4a"
	if err := os.WriteFile(path+".part", []byte("partial"), 0644); err != nil {
		return "", err
	}
	for _, p := range e.progress {
		progress(p)
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.dlErr != nil {
		return "", e.dlErr
	}
	if err := os.Rename(path+".part", path); err != nil {
		return "", err
	}
	return path, nil
}

type recordingReporter struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *recordingReporter) Report(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingReporter) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Phase
	for _, s := range r.statuses {
		out = append(out, s.Phase)
	}
	return out
}

type memSettings struct {
	mu      sync.Mutex
	volumes map[snowflake.ID]float64
	plays   []string
}

func newMemSettings() *memSettings {
	return &memSettings{volumes: map[snowflake.ID]float64{}}
}

func (m *memSettings) LoadVolume(ctx context.Context, guildID snowflake.ID) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[guildID]
	return v, ok
}

func (m *memSettings) SaveVolume(ctx context.Context, guildID snowflake.ID, volume float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[guildID] = volume
	return nil
}

func (m *memSettings) RecordPlay(ctx context.Context, guildID, userID snowflake.ID, source, title string, remote bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays = append(m.plays, source)
	return nil
}

func (m *memSettings) Plays() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.plays...)
}

// eventually polls cond until it holds or the timeout passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
