package proc

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/leeineian/jukebox/sys"
)

// ClipExtensions are the file types the clip store indexes.
var ClipExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".opus", ".webm", ".flac", ".aac"}

// Clip is one playable file in the clip directory.
type Clip struct {
	Name     string // file name without extension
	Category string // first directory below the root, empty for top-level clips
	Path     string
}

// ClipStore indexes the local clip directory. Lookups are case-insensitive
// and accept names with or without extension.
type ClipStore struct {
	root string

	mu    sync.RWMutex
	clips []Clip
	byKey map[string]string

	dirty   atomic.Bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewClipStore(root string) *ClipStore {
	s := &ClipStore{root: root, byKey: map[string]string{}, done: make(chan struct{})}
	s.dirty.Store(true)
	return s
}

func (s *ClipStore) Root() string { return s.root }

// Watch marks the index stale whenever the clip directory changes.
func (s *ClipStore) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := s.addWatches(w); err != nil {
		w.Close()
		return err
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.dirty.Store(true)
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = w.Add(ev.Name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				sys.LogVoice(sys.MsgVoiceClipIndexFail, s.root, err)
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *ClipStore) addWatches(w *fsnotify.Watcher) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (s *ClipStore) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// Refresh rebuilds the index from disk.
func (s *ClipStore) Refresh() error {
	s.dirty.Store(false)

	var clips []Clip
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !slices.Contains(ClipExtensions, ext) {
			return nil
		}
		clip := Clip{
			Name: strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Path: path,
		}
		if rel, err := filepath.Rel(s.root, path); err == nil {
			if parts := strings.Split(filepath.ToSlash(rel), "/"); len(parts) > 1 {
				clip.Category = parts[0]
			}
		}
		clips = append(clips, clip)
		return nil
	})
	if err != nil {
		s.dirty.Store(true)
		return err
	}

	slices.SortFunc(clips, func(a, b Clip) int {
		if c := strings.Compare(strings.ToLower(a.Category), strings.ToLower(b.Category)); c != 0 {
			return c
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	byKey := make(map[string]string, len(clips)*2)
	for _, c := range clips {
		base := filepath.Base(c.Path)
		// First match in sorted order wins for duplicate names
		for _, k := range []string{strings.ToLower(base), strings.ToLower(c.Name)} {
			if _, taken := byKey[k]; !taken {
				byKey[k] = c.Path
			}
		}
	}

	s.mu.Lock()
	s.clips = clips
	s.byKey = byKey
	s.mu.Unlock()
	return nil
}

func (s *ClipStore) ensureFresh() {
	if !s.dirty.Load() {
		return
	}
	if err := s.Refresh(); err != nil {
		sys.LogVoice(sys.MsgVoiceClipIndexFail, s.root, err)
	}
}

// Find resolves a clip name to its path.
func (s *ClipStore) Find(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", &ResolutionError{Source: name, Err: ErrNotFound}
	}

	s.ensureFresh()
	if p, ok := s.lookup(key); ok {
		return p, nil
	}

	// The watcher may not have caught up with a file added moments ago
	if err := s.Refresh(); err != nil {
		sys.LogVoice(sys.MsgVoiceClipIndexFail, s.root, err)
	}
	if p, ok := s.lookup(key); ok {
		return p, nil
	}
	return "", &ResolutionError{Source: name, Err: ErrNotFound}
}

func (s *ClipStore) lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byKey[key]
	return p, ok
}

// List returns clips in category (case-insensitive), or every clip when category is empty.
func (s *ClipStore) List(category string) []Clip {
	s.ensureFresh()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if category == "" {
		return slices.Clone(s.clips)
	}
	var out []Clip
	for _, c := range s.clips {
		if strings.EqualFold(c.Category, category) {
			out = append(out, c)
		}
	}
	return out
}

// Categories returns the distinct clip categories in sorted order.
func (s *ClipStore) Categories() []string {
	s.ensureFresh()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cats []string
	for _, c := range s.clips {
		if c.Category != "" && !slices.Contains(cats, c.Category) {
			cats = append(cats, c.Category)
		}
	}
	return cats
}
