package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handlePause(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox) {
	control(event, j, (*proc.SoundPlayer).Pause)
}

func handleResume(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox) {
	control(event, j, (*proc.SoundPlayer).Resume)
}

func handleSkip(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox) {
	control(event, j, (*proc.SoundPlayer).Skip)
}

// control applies a playback control to the guild's session.
func control(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox, op func(*proc.SoundPlayer) error) {
	p := j.Session(*event.GuildID())
	if p == nil {
		sys.Confusion(event, sys.ErrVoiceNotConnected)
		return
	}
	if err := op(p); err != nil {
		sys.Confusion(event, describe(err))
		return
	}
	sys.Confirmation(event, "")
}
