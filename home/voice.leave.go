package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleLeave(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox) {
	deferredFor(event).run(func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return "", j.Leave(ctx, *event.GuildID())
	})
}

// deferredResponder acknowledges an interaction before doing slow work and
// reports the outcome on the deferred response. Teardown waits for the stream,
// the voice connection and any running download, which can outlast the reply
// window.
type deferredResponder struct {
	ack     func() error
	confirm func(message string)
	confuse func(reason string)
}

func deferredFor(event *events.ApplicationCommandInteractionCreate) deferredResponder {
	return deferredResponder{
		ack:     func() error { return event.DeferCreateMessage(false) },
		confirm: func(message string) { sys.ConfirmationDeferred(event, message) },
		confuse: func(reason string) { sys.ConfusionDeferred(event, reason) },
	}
}

func (r deferredResponder) run(work func() (string, error)) {
	if err := r.ack(); err != nil {
		sys.LogVoice(sys.MsgVoiceRespondFail, err)
		return
	}
	message, err := work()
	if err != nil {
		r.confuse(describe(err))
		return
	}
	r.confirm(message)
}
