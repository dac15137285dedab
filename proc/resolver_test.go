package proc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeClip(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestResolver(t *testing.T, ext Extractor) (*ContentResolver, *DownloadCache, string) {
	t.Helper()
	clipDir := t.TempDir()
	cache := NewDownloadCache(t.TempDir())
	return NewContentResolver(NewClipStore(clipDir), cache, ext), cache, clipDir
}

func TestResolveLocalClip(t *testing.T) {
	r, _, clipDir := newTestResolver(t, newFakeExtractor())
	want := writeClip(t, clipDir, filepath.Join("memes", "AirHorn.mp3"))

	for _, name := range []string{"airhorn", "AIRHORN", "airhorn.mp3", " AirHorn.MP3 "} {
		res, err := r.Resolve(context.Background(), name, nil)
		if err != nil {
			t.Errorf("Resolve(%q) failed: %v", name, err)
			continue
		}
		if res.Path != want || res.Remote {
			t.Errorf("Resolve(%q): Expected local %s, got %+v", name, want, res)
		}
	}
}

func TestResolveUnknownClip(t *testing.T) {
	r, _, _ := newTestResolver(t, newFakeExtractor())

	_, err := r.Resolve(context.Background(), "nothing-here", nil)
	var re *ResolutionError
	if !errors.As(err, &re) || !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ResolutionError{ErrNotFound}, got %v", err)
	}
}

func TestResolveFindsClipAddedLater(t *testing.T) {
	r, _, clipDir := newTestResolver(t, newFakeExtractor())
	if _, err := r.Resolve(context.Background(), "late", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before the file exists, got %v", err)
	}

	want := writeClip(t, clipDir, "late.ogg")
	res, err := r.Resolve(context.Background(), "late", nil)
	if err != nil || res.Path != want {
		t.Errorf("Expected %s after the file was added, got %v (%v)", want, res, err)
	}
}

func TestResolveUnsupportedLink(t *testing.T) {
	r, _, _ := newTestResolver(t, newFakeExtractor())

	for _, link := range []string{"ftp://example.com/a.mp3", "file:///etc/passwd", "https://"} {
		if _, err := r.Resolve(context.Background(), link, nil); !errors.Is(err, ErrUnsupportedLink) {
			t.Errorf("Resolve(%q): Expected ErrUnsupportedLink, got %v", link, err)
		}
	}
}

func TestNormalizeLink(t *testing.T) {
	got, err := NormalizeLink("  www.Example.com/watch?v=1#t=10 ")
	if err != nil {
		t.Fatalf("NormalizeLink failed: %v", err)
	}
	if got != "https://www.example.com/watch?v=1" {
		t.Errorf("Expected https://www.example.com/watch?v=1, got %s", got)
	}
}

func TestResolveRemoteReportsProgress(t *testing.T) {
	ext := newFakeExtractor()
	ext.progress = []DownloadProgress{{Downloaded: 50, Total: 100}, {Downloaded: 10}}
	r, cache, _ := newTestResolver(t, ext)
	rep := &recordingReporter{}

	res, err := r.Resolve(context.Background(), "https://example.com/v", rep)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.Remote || res.Meta == nil || res.Meta.Title != "Song" {
		t.Errorf("Expected remote result with metadata, got %+v", res)
	}
	if !strings.HasPrefix(res.Path, cache.Dir()) || filepath.Ext(res.Path) != ".m4a" {
		t.Errorf("Expected cached .m4a path, got %s", res.Path)
	}

	phases := rep.Phases()
	want := []Phase{PhaseStarting, PhaseDownloading, PhaseDownloading, PhasePlaying}
	if len(phases) != len(want) {
		t.Fatalf("Expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("Phase %d: Expected %s, got %s", i, want[i], phases[i])
		}
	}
	if s := rep.statuses[1]; !s.Determinate || s.Percent != 50 {
		t.Errorf("Expected 50%%, got %+v", s)
	}
	if s := rep.statuses[2]; s.Determinate {
		t.Errorf("Expected undeterminable progress, got %+v", s)
	}

	// Second resolve is a cache hit
	if _, err := r.Resolve(context.Background(), "https://example.com/v", nil); err != nil {
		t.Fatalf("Cached resolve failed: %v", err)
	}
	if n := ext.dlCalls.Load(); n != 1 {
		t.Errorf("Expected 1 download, got %d", n)
	}
}

func TestConcurrentResolvesShareOneDownload(t *testing.T) {
	ext := newFakeExtractor()
	ext.gate = make(chan struct{})
	r, _, _ := newTestResolver(t, ext)

	const n = 5
	var wg sync.WaitGroup
	paths := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), "https://example.com/v", nil)
			errs[i] = err
			if res != nil {
				paths[i] = res.Path
			}
		}(i)
	}

	select {
	case <-ext.started:
	case <-time.After(time.Second):
		t.Fatal("download never started")
	}
	time.Sleep(20 * time.Millisecond)
	close(ext.gate)
	wg.Wait()

	if c := ext.dlCalls.Load(); c != 1 {
		t.Errorf("Expected 1 download, got %d", c)
	}
	if c := ext.infoCalls.Load(); c != 1 {
		t.Errorf("Expected 1 metadata fetch, got %d", c)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil || paths[i] != paths[0] {
			t.Errorf("Resolver %d: Expected %s, got %s (%v)", i, paths[0], paths[i], errs[i])
		}
	}
}

func TestJoinersShareFailure(t *testing.T) {
	ext := newFakeExtractor()
	ext.gate = make(chan struct{})
	ext.dlErr = errors.New("connection reset")
	r, _, _ := newTestResolver(t, ext)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := r.Resolve(context.Background(), "https://example.com/v", nil)
			errs <- err
		}()
	}
	<-ext.started
	time.Sleep(20 * time.Millisecond)
	close(ext.gate)

	for i := 0; i < 2; i++ {
		err := <-errs
		var de *DownloadError
		if !errors.As(err, &de) || !errors.Is(err, ErrNetworkFailure) {
			t.Errorf("Expected DownloadError{ErrNetworkFailure}, got %v", err)
		}
	}
	if c := ext.dlCalls.Load(); c != 1 {
		t.Errorf("Expected joiners to share one download, got %d", c)
	}
}

func TestIncompleteMetadataFailsAndIsRetryable(t *testing.T) {
	ext := newFakeExtractor()
	ext.meta.Duration = 0
	r, cache, _ := newTestResolver(t, ext)
	rep := &recordingReporter{}

	_, err := r.Resolve(context.Background(), "https://example.com/v", rep)
	var de *DownloadError
	if !errors.As(err, &de) || !errors.Is(err, ErrMetadataIncomplete) {
		t.Fatalf("Expected DownloadError{ErrMetadataIncomplete}, got %v", err)
	}
	if len(de.Missing) != 1 || de.Missing[0] != "duration" {
		t.Errorf("Expected missing [duration], got %v", de.Missing)
	}
	if c := ext.dlCalls.Load(); c != 0 {
		t.Errorf("Expected no download, got %d", c)
	}
	if phases := rep.Phases(); len(phases) != 1 || phases[0] != PhaseError {
		t.Errorf("Expected a single Error status, got %v", phases)
	}

	e, ok := cache.Get(CacheKey("https://example.com/v"))
	if !ok || cache.State(e) != CacheFailed {
		t.Fatalf("Expected a failed cache entry")
	}

	ext.meta.Duration = time.Minute
	if _, err := r.Resolve(context.Background(), "https://example.com/v", nil); err != nil {
		t.Errorf("Expected retry to succeed, got %v", err)
	}
}
