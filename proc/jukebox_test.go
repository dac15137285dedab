package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type deviceFactory struct {
	mu      sync.Mutex
	devices []*fakeDevice
}

func (f *deviceFactory) New(guildID, channelID snowflake.ID) Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDevice{}
	f.devices = append(f.devices, d)
	return d
}

func newTestJukebox(t *testing.T, settings Settings) (*Jukebox, *deviceFactory, string) {
	t.Helper()
	root := t.TempDir()
	factory := &deviceFactory{}
	j, err := NewJukebox(JukeboxConfig{
		ClipDir:       filepath.Join(root, "clips"),
		CacheDir:      filepath.Join(root, "cache"),
		DefaultVolume: 80,
		Extractor:     newFakeExtractor(),
		Streamer:      newFakeStreamer(),
		Settings:      settings,
		NewDevice:     factory.New,
	})
	if err != nil {
		t.Fatalf("NewJukebox failed: %v", err)
	}
	t.Cleanup(func() { j.Shutdown(context.Background()) })
	return j, factory, root
}

func TestNewJukeboxWipesCacheRoot(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "cache", "123", "old.m4a")
	_ = os.MkdirAll(filepath.Dir(stale), 0755)
	_ = os.WriteFile(stale, []byte("x"), 0644)

	j, err := NewJukebox(JukeboxConfig{
		ClipDir:   filepath.Join(root, "clips"),
		CacheDir:  filepath.Join(root, "cache"),
		Extractor: newFakeExtractor(),
		Streamer:  newFakeStreamer(),
		NewDevice: (&deviceFactory{}).New,
	})
	if err != nil {
		t.Fatalf("NewJukebox failed: %v", err)
	}
	defer j.Shutdown(context.Background())

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("Expected stale cache file to be removed, got %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "cache")); err != nil || !info.IsDir() {
		t.Errorf("Expected the cache root to exist, got %v", err)
	}
}

func TestNewJukeboxRequiresCollaborators(t *testing.T) {
	if _, err := NewJukebox(JukeboxConfig{CacheDir: t.TempDir()}); err == nil {
		t.Error("Expected an error without a device factory")
	}
}

func TestPrepareReusesSession(t *testing.T) {
	j, factory, _ := newTestJukebox(t, nil)

	a := j.Prepare(testGuild, testChannel)
	b := j.Prepare(testGuild, testChannel)
	if a != b {
		t.Error("Expected the same session for the same channel")
	}
	if j.Session(testGuild) != a {
		t.Error("Expected Session to return the prepared session")
	}
	if len(factory.devices) != 1 {
		t.Errorf("Expected 1 device, got %d", len(factory.devices))
	}
	if v := a.Volume(); v != 80 {
		t.Errorf("Expected default volume 80, got %v", v)
	}
}

func TestPrepareOtherChannelReplacesSession(t *testing.T) {
	j, _, _ := newTestJukebox(t, nil)

	old := j.Prepare(testGuild, testChannel)
	next := j.Prepare(testGuild, testChannel+1)
	if old == next {
		t.Fatal("Expected a new session for another channel")
	}
	select {
	case <-old.Closed():
	case <-time.After(time.Second):
		t.Error("Expected the old session to be torn down")
	}
}

func TestPrepareRestoresSavedVolume(t *testing.T) {
	settings := newMemSettings()
	settings.volumes[testGuild] = 35
	j, _, _ := newTestJukebox(t, settings)

	if v := j.Prepare(testGuild, testChannel).Volume(); v != 35 {
		t.Errorf("Expected saved volume 35, got %v", v)
	}
}

func TestLeaveWithoutSession(t *testing.T) {
	j, _, _ := newTestJukebox(t, nil)

	if err := j.Leave(context.Background(), testGuild); !errors.Is(err, ErrDeviceNotAttached) {
		t.Errorf("Expected ErrDeviceNotAttached, got %v", err)
	}
	if err := j.Vacate(context.Background(), testGuild); err != nil {
		t.Errorf("Expected Vacate without a session to succeed, got %v", err)
	}
}

func TestVacateMatchesLeave(t *testing.T) {
	j, factory, _ := newTestJukebox(t, nil)

	for _, teardown := range []func(context.Context, snowflake.ID) error{j.Leave, j.Vacate} {
		p := j.Prepare(testGuild, testChannel)
		_ = factory.devices[len(factory.devices)-1].Attach(context.Background())
		cached := filepath.Join(p.cache.Dir(), "x.m4a")
		_ = os.MkdirAll(filepath.Dir(cached), 0755)
		_ = os.WriteFile(cached, []byte("x"), 0644)

		if err := teardown(context.Background(), testGuild); err != nil {
			t.Fatalf("teardown failed: %v", err)
		}
		if j.Session(testGuild) != nil {
			t.Error("Expected the session to be removed")
		}
		if p.device.Attached() {
			t.Error("Expected the device to be detached")
		}
		if _, err := os.Stat(cached); !os.IsNotExist(err) {
			t.Error("Expected the session cache to be purged")
		}
	}
}

func TestShutdownTearsDownEverySession(t *testing.T) {
	j, _, _ := newTestJukebox(t, nil)
	a := j.Prepare(1, 10)
	b := j.Prepare(2, 20)

	j.Shutdown(context.Background())
	for _, p := range []*SoundPlayer{a, b} {
		select {
		case <-p.Closed():
		default:
			t.Errorf("Expected guild %s to be torn down", p.GuildID())
		}
	}
	if j.Session(1) != nil || j.Session(2) != nil {
		t.Error("Expected no sessions after shutdown")
	}
}

func TestRebindKeepsReplacementDownloads(t *testing.T) {
	j, factory, _ := newTestJukebox(t, nil)

	old := j.Prepare(testGuild, testChannel)
	oldDev := factory.devices[0]
	_ = oldDev.Attach(context.Background())
	gate := make(chan struct{})
	oldDev.mu.Lock()
	oldDev.detachGate = gate
	oldDev.mu.Unlock()

	next := j.Prepare(testGuild, testChannel+1)
	factory.mu.Lock()
	newDev := factory.devices[1]
	factory.mu.Unlock()
	if old.cache.Dir() == next.cache.Dir() {
		t.Fatal("Expected each session to have its own cache dir")
	}

	type result struct {
		track *Track
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tr, err := next.Play(context.Background(), next.Admit(), PlayRequest{Source: "https://example.com/song"})
		done <- result{tr, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if newDev.Attached() {
		t.Error("Expected the new session to wait for the old one to leave voice")
	}

	close(gate)
	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the play to finish once the old session left")
	}
	if res.err != nil {
		t.Fatalf("Play failed: %v", res.err)
	}
	select {
	case <-old.Gone():
	case <-time.After(time.Second):
		t.Fatal("Expected the old session to finish tearing down")
	}

	if _, err := os.Stat(res.track.Path()); err != nil {
		t.Errorf("Expected the new session's download to survive, got %v", err)
	}
	if _, err := os.Stat(old.cache.Dir()); !os.IsNotExist(err) {
		t.Errorf("Expected the old session's cache dir to be gone, got %v", err)
	}
	if !newDev.Attached() {
		t.Error("Expected the new session to be attached")
	}
}
