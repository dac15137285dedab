package home

import (
	"context"
	"fmt"
	"strconv"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func handleVolume(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, j *proc.Jukebox) {
	percent, ok := data.OptFloat("percent")
	if !ok {
		sys.Confusion(event, sys.ErrVoiceInvalidVolume)
		return
	}

	p := j.Session(*event.GuildID())
	if p == nil {
		sys.Confusion(event, sys.ErrVoiceNotConnected)
		return
	}

	v, err := p.SetVolume(context.Background(), percent)
	if err != nil {
		sys.Confusion(event, describe(err))
		return
	}
	sys.Confirmation(event, fmt.Sprintf("Volume set to %s%%", strconv.FormatFloat(v, 'f', -1, 64)))
}
