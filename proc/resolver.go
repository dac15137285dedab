package proc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/leeineian/jukebox/sys"
)

// Extractor talks to the remote extraction service.
type Extractor interface {
	// Info fetches metadata for link without downloading it.
	Info(ctx context.Context, link string) (*Metadata, error)
	// Download saves link's audio to dest plus the service's extension and
	// returns the final path. progress may be called from any goroutine.
	Download(ctx context.Context, link, dest string, progress func(DownloadProgress)) (string, error)
}

// Resolved is a playable source.
type Resolved struct {
	Source string
	Path   string
	Remote bool
	Meta   *Metadata
}

// ContentResolver turns a user-supplied source into a local file path.
type ContentResolver struct {
	clips     *ClipStore
	cache     *DownloadCache
	extractor Extractor
}

func NewContentResolver(clips *ClipStore, cache *DownloadCache, extractor Extractor) *ContentResolver {
	return &ContentResolver{clips: clips, cache: cache, extractor: extractor}
}

// IsLink reports whether source should be treated as a remote link rather than a clip name.
func IsLink(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.Contains(s, "://") || strings.HasPrefix(s, "www.")
}

// NormalizeLink canonicalizes a link so equivalent spellings share a cache key.
func NormalizeLink(source string) (string, error) {
	s := strings.TrimSpace(source)
	if strings.HasPrefix(strings.ToLower(s), "www.") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", &ResolutionError{Source: source, Err: fmt.Errorf("%w: %v", ErrUnsupportedLink, err)}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ResolutionError{Source: source, Err: ErrUnsupportedLink}
	}
	if u.Host == "" {
		return "", &ResolutionError{Source: source, Err: ErrUnsupportedLink}
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// Resolve returns a playable path for source. Remote sources are downloaded
// at most once per session; concurrent requests for the same link share one
// download. rep may be nil.
func (r *ContentResolver) Resolve(ctx context.Context, source string, rep Reporter) (*Resolved, error) {
	if rep == nil {
		rep = nopReporter{}
	}

	if !IsLink(source) {
		path, err := r.clips.Find(source)
		if err != nil {
			return nil, err
		}
		return &Resolved{Source: source, Path: path}, nil
	}

	link, err := NormalizeLink(source)
	if err != nil {
		return nil, err
	}

	entry, owner := r.cache.BeginOrJoin(CacheKey(link))
	if owner {
		r.download(entry, link, rep)
	}

	path, meta, err := entry.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return &Resolved{Source: link, Path: path, Remote: true, Meta: meta}, nil
}

// download fills entry. It always completes the entry, including when the
// cache is purged mid-download.
func (r *ContentResolver) download(entry *CacheEntry, link string, rep Reporter) {
	ctx := entry.Context()
	var meta *Metadata

	fail := func(err error) {
		sys.LogCache(sys.MsgCacheDownloadFail, link, err)
		rep.Report(statusFor(meta, PhaseError))
		r.cache.Complete(entry, "", err)
	}

	if err := os.MkdirAll(r.cache.Dir(), 0755); err != nil {
		fail(&DownloadError{Link: link, Err: ErrNetworkFailure, Cause: err})
		return
	}

	meta, err := r.extractor.Info(ctx, link)
	if err != nil {
		fail(&DownloadError{Link: link, Err: ErrNetworkFailure, Cause: err})
		return
	}
	if meta == nil {
		meta = &Metadata{}
	}
	meta.Link = link
	if missing := meta.Missing(); len(missing) > 0 {
		sys.LogVoice(sys.MsgVoiceMetadataMissing, link, strings.Join(missing, ", "))
		fail(&DownloadError{Link: link, Missing: missing, Err: ErrMetadataIncomplete})
		return
	}
	r.cache.SetMetadata(entry, meta)

	rep.Report(statusFor(meta, PhaseStarting))

	path, err := r.extractor.Download(ctx, link, r.cache.PathFor(entry.Key), func(p DownloadProgress) {
		s := statusFor(meta, PhaseDownloading)
		s.Percent, s.Determinate = p.Percent()
		rep.Report(s)
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		var dlErr *DownloadError
		if !errors.As(err, &dlErr) {
			err = &DownloadError{Link: link, Err: ErrNetworkFailure, Cause: err}
		}
		fail(err)
		return
	}

	sys.LogCache(sys.MsgCacheDownloadDone, meta.Title, path)
	rep.Report(statusFor(meta, PhasePlaying))
	r.cache.Complete(entry, path, nil)
}
