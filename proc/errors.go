package proc

import (
	"errors"
	"fmt"
)

var (
	// Resolution
	ErrNotFound        = errors.New("no clip with that name")
	ErrUnsupportedLink = errors.New("unsupported link")

	// Download
	ErrMetadataIncomplete = errors.New("track metadata incomplete")
	ErrNetworkFailure     = errors.New("download failed")

	// Playback
	ErrStreamFailure = errors.New("stream failed")

	// Session state
	ErrDeviceNotAttached = errors.New("not connected to a voice channel")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrAlreadyPaused     = errors.New("already paused")
	ErrNotPaused         = errors.New("not paused")
	ErrSessionClosed     = errors.New("session closed")
)

// ResolutionError is returned when a source cannot be turned into a playable path.
type ResolutionError struct {
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DownloadError is returned when a remote source fails to download. Missing
// lists the metadata fields absent when Err is ErrMetadataIncomplete.
type DownloadError struct {
	Link    string
	Missing []string
	Err     error
	Cause   error
}

func (e *DownloadError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("download %s: %v (missing %v)", e.Link, e.Err, e.Missing)
	case e.Cause != nil:
		return fmt.Sprintf("download %s: %v: %v", e.Link, e.Err, e.Cause)
	default:
		return fmt.Sprintf("download %s: %v", e.Link, e.Err)
	}
}

func (e *DownloadError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

type PlaybackError struct {
	Path string
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("play %s: %v: %v", e.Path, ErrStreamFailure, e.Err)
}

func (e *PlaybackError) Unwrap() []error { return []error{ErrStreamFailure, e.Err} }

// StateError is returned when a command does not fit the session's current state.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

func stateErr(op string, err error) error {
	return &StateError{Op: op, Err: err}
}
