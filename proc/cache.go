package proc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/leeineian/jukebox/sys"
)

type CacheState int

const (
	CachePending CacheState = iota
	CacheReady
	CacheFailed
)

func (s CacheState) String() string {
	switch s {
	case CachePending:
		return "pending"
	case CacheReady:
		return "ready"
	case CacheFailed:
		return "failed"
	default:
		return fmt.Sprintf("CacheState(%d)", int(s))
	}
}

// CacheEntry tracks one remote source. Path and Err are only meaningful once
// Done is closed.
type CacheEntry struct {
	Key string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by DownloadCache.mu
	state CacheState
	path  string
	meta  *Metadata
	err   error
}

// Context is cancelled when the cache is purged. Owners download under it.
func (e *CacheEntry) Context() context.Context { return e.ctx }

func (e *CacheEntry) Done() <-chan struct{} { return e.done }

// Wait blocks until the owner completes the entry or ctx ends.
func (e *CacheEntry) Wait(ctx context.Context) (string, *Metadata, error) {
	select {
	case <-e.done:
		return e.path, e.meta, e.err
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// DownloadCache holds downloaded remote tracks for one session, keyed by source link.
type DownloadCache struct {
	dir string

	mu      sync.Mutex
	idle    *sync.Cond
	purging bool
	closed  bool
	entries map[string]*CacheEntry
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDownloadCache(dir string) *DownloadCache {
	c := &DownloadCache{
		dir:     dir,
		entries: make(map[string]*CacheEntry),
	}
	c.idle = sync.NewCond(&c.mu)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// CacheKey derives the cache key for a normalized link.
func CacheKey(link string) string {
	sum := sha256.Sum256([]byte("sp:" + link))
	return hex.EncodeToString(sum[:])
}

func (c *DownloadCache) Dir() string { return c.dir }

// PathFor is the download destination for key, without extension.
func (c *DownloadCache) PathFor(key string) string {
	return filepath.Join(c.dir, key)
}

func (c *DownloadCache) State(e *CacheEntry) CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return e.state
}

func (c *DownloadCache) Get(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// BeginOrJoin returns the entry for key. owner is true when the caller created
// a fresh Pending entry and is now responsible for downloading and calling
// Complete. Failed entries, and Ready entries whose file is gone, are replaced.
// Once the cache is closed every call gets an entry already failed with
// ErrSessionClosed.
func (c *DownloadCache) BeginOrJoin(key string) (entry *CacheEntry, owner bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.purging {
		c.idle.Wait()
	}
	if c.closed {
		return closedEntry(key), false
	}

	if e, ok := c.entries[key]; ok {
		switch e.state {
		case CachePending:
			return e, false
		case CacheReady:
			if _, err := os.Stat(e.path); err == nil {
				return e, false
			}
		}
	}

	ctx, cancel := context.WithCancel(c.ctx)
	e := &CacheEntry{
		Key:    key,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  CachePending,
	}
	c.entries[key] = e
	return e, true
}

// SetMetadata records metadata on a pending entry so joiners see it too.
func (c *DownloadCache) SetMetadata(e *CacheEntry, meta *Metadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.meta = meta
}

// Complete settles an entry owned by the caller. An entry whose context was
// cancelled by a purge always settles as Failed.
func (c *DownloadCache) Complete(e *CacheEntry, path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.state != CachePending {
		return
	}
	if err == nil && e.ctx.Err() != nil {
		err = e.ctx.Err()
	}
	if err != nil {
		e.state = CacheFailed
		e.err = err
		removePartials(c.PathFor(e.Key))
	} else {
		e.state = CacheReady
		e.path = path
	}
	e.cancel()
	close(e.done)
}

func closedEntry(key string) *CacheEntry {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &CacheEntry{
		Key:    key,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  CacheFailed,
		err:    ErrSessionClosed,
	}
	close(e.done)
	return e
}

// PurgeAll cancels every in-flight download, waits for each owner to observe
// the cancellation and settle its entry, then deletes every cached file.
func (c *DownloadCache) PurgeAll() error {
	return c.purge(false)
}

// Close purges the cache and removes its directory. Nothing can be added afterwards.
func (c *DownloadCache) Close() error {
	return c.purge(true)
}

func (c *DownloadCache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *DownloadCache) purge(closing bool) error {
	c.mu.Lock()
	for c.purging {
		c.idle.Wait()
	}
	c.purging = true
	c.cancel()
	var pending []*CacheEntry
	for _, e := range c.entries {
		if e.state == CachePending {
			pending = append(pending, e)
		}
	}
	c.mu.Unlock()

	for _, e := range pending {
		<-e.done
	}

	removed, err := clearDir(c.dir)
	if closing && err == nil {
		if rmErr := os.Remove(c.dir); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	}

	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	if closing {
		c.closed = true
	}
	if !c.closed {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}
	c.purging = false
	c.idle.Broadcast()
	c.mu.Unlock()

	if err != nil {
		sys.LogCache(sys.MsgCachePurgeFail, c.dir, err)
		return err
	}
	if removed > 0 {
		sys.LogCache(sys.MsgCachePurged, removed, c.dir)
	}
	return nil
}

func clearDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var errs []error
	removed := 0
	for _, de := range entries {
		if err := os.RemoveAll(filepath.Join(dir, de.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// removePartials deletes whatever a failed download left at dest.*
func removePartials(dest string) {
	matches, _ := filepath.Glob(dest + ".*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
	_ = os.Remove(dest)
}
