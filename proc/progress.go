package proc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leeineian/jukebox/sys"
	"golang.org/x/time/rate"
)

// Phase is where a remote track is in its lifecycle, as shown to the requester.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseDownloading
	PhaseError
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "Starting"
	case PhaseDownloading:
		return "Downloading"
	case PhaseError:
		return "Error"
	case PhasePlaying:
		return "Playing"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Status is a progress snapshot for one remote track.
type Status struct {
	Title        string
	Uploader     string
	SourceURL    string
	ThumbnailURL string
	Duration     time.Duration
	Phase        Phase
	Percent      int
	Determinate  bool
}

// Progress renders the progress field the way users see it.
func (s Status) Progress() string {
	switch s.Phase {
	case PhaseStarting:
		return "Starting..."
	case PhaseDownloading:
		if !s.Determinate {
			return "Can't be determined"
		}
		return fmt.Sprintf("%d%%", s.Percent)
	case PhaseError:
		return "Error"
	default:
		return "Playing..."
	}
}

func statusFor(meta *Metadata, phase Phase) Status {
	s := Status{Phase: phase}
	if meta != nil {
		s.Title = meta.Title
		s.Uploader = meta.Uploader
		s.SourceURL = meta.Link
		s.ThumbnailURL = meta.Thumbnail
		s.Duration = meta.Duration
	}
	return s
}

// DownloadProgress is a raw progress sample from the extractor. Zero totals are unknown.
type DownloadProgress struct {
	Downloaded int64
	Total      int64
	Estimate   int64
}

// Percent applies the exact total, then the estimate. ok is false when neither is known.
func (p DownloadProgress) Percent() (pct int, ok bool) {
	total := p.Total
	if total <= 0 {
		total = p.Estimate
	}
	if total <= 0 {
		return 0, false
	}
	pct = int(p.Downloaded * 100 / total)
	return min(max(pct, 0), 100), true
}

// Reporter receives progress snapshots. Report is called from download
// goroutines and must not block.
type Reporter interface {
	Report(Status)
}

type nopReporter struct{}

func (nopReporter) Report(Status) {}

// StatusFeed hands Status values from download goroutines to a single
// delivery goroutine. Bursts are coalesced to the latest value and deliveries
// are rate limited.
type StatusFeed struct {
	send    func(ctx context.Context, s Status) error
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
	ch     chan Status
	done   chan struct{}
}

func NewStatusFeed(interval time.Duration, send func(ctx context.Context, s Status) error) *StatusFeed {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	f := &StatusFeed{
		send:    send,
		limiter: rate.NewLimiter(limit, 1),
		ch:      make(chan Status, 16),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *StatusFeed) Report(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- s:
	default:
		// Full: drop the oldest, the newest is what matters
		select {
		case <-f.ch:
		default:
		}
		f.ch <- s
	}
}

// Close delivers whatever is pending and stops the feed.
func (f *StatusFeed) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	f.mu.Unlock()
	<-f.done
}

func (f *StatusFeed) run() {
	defer close(f.done)

	var (
		last    Status
		hasLast bool
	)
	for s := range f.ch {
	drain:
		for {
			select {
			case n, ok := <-f.ch:
				if !ok {
					break drain
				}
				s = n
			default:
				break drain
			}
		}
		if hasLast && s == last {
			continue
		}
		_ = f.limiter.Wait(context.Background())
		if err := f.send(context.Background(), s); err != nil {
			sys.LogVoice(sys.MsgVoiceStatusUpdateFail, err)
			continue
		}
		last, hasLast = s, true
	}
}
