package proc

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// Request is the context a play command was issued in.
type Request struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	UserID    snowflake.ID
	Source    string
	Reporter  Reporter
}

// Metadata describes a remote track. A zero field means the extractor did not provide it.
type Metadata struct {
	Title     string
	Uploader  string
	Duration  time.Duration
	Thumbnail string
	Link      string
}

// Missing lists the required fields the extractor left empty.
func (m *Metadata) Missing() []string {
	if m == nil {
		return []string{"title", "uploader", "duration", "thumbnail"}
	}
	var missing []string
	if m.Title == "" {
		missing = append(missing, "title")
	}
	if m.Uploader == "" {
		missing = append(missing, "uploader")
	}
	if m.Duration <= 0 {
		missing = append(missing, "duration")
	}
	if m.Thumbnail == "" {
		missing = append(missing, "thumbnail")
	}
	return missing
}

// Track is one admitted play request. It is never modified after NewTrack.
type Track struct {
	id      uuid.UUID
	request Request
	path    string
	remote  bool
	times   int
	meta    *Metadata
}

func NewTrack(req Request, path string, remote bool, times int, meta *Metadata) (*Track, error) {
	if times < 1 {
		return nil, stateErr("track", fmt.Errorf("%w: repeat count %d", ErrInvalidArgument, times))
	}
	if path == "" {
		return nil, stateErr("track", fmt.Errorf("%w: empty path", ErrInvalidArgument))
	}
	return &Track{
		id:      uuid.New(),
		request: req,
		path:    path,
		remote:  remote,
		times:   times,
		meta:    meta,
	}, nil
}

func (t *Track) ID() uuid.UUID       { return t.id }
func (t *Track) Request() Request    { return t.request }
func (t *Track) Path() string        { return t.path }
func (t *Track) Remote() bool        { return t.remote }
func (t *Track) Times() int          { return t.times }
func (t *Track) Metadata() *Metadata { return t.meta }

// Title is the remote title when known, otherwise the clip's file name.
func (t *Track) Title() string {
	if t.meta != nil && t.meta.Title != "" {
		return t.meta.Title
	}
	base := filepath.Base(t.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// remaining returns the same track with one play consumed.
func (t *Track) remaining() *Track {
	next := *t
	next.times--
	return &next
}

func (t *Track) String() string {
	if t.times > 1 {
		return fmt.Sprintf("%s (x%d)", t.Title(), t.times)
	}
	return t.Title()
}

// ParseTimes splits a trailing repeat count off the times argument. Any words
// before the count belong to the source. A non-numeric trailing word means the
// whole argument was part of the source and the count is 1.
func ParseTimes(source, times string) (string, int) {
	source = strings.TrimSpace(source)
	fields := strings.Fields(times)
	if len(fields) == 0 {
		return source, 1
	}

	count, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return strings.Join(append([]string{source}, fields...), " "), 1
	}

	if rest := fields[:len(fields)-1]; len(rest) > 0 {
		source = strings.Join(append([]string{source}, rest...), " ")
	}
	return source, count
}
