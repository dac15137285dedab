package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const maxListed = 15

func handleQueue(event *events.ApplicationCommandInteractionCreate, j *proc.Jukebox) {
	p := j.Session(*event.GuildID())
	if p == nil {
		sys.Confusion(event, sys.ErrVoiceNotConnected)
		return
	}

	current, queued := p.NowPlaying()
	if current == nil && len(queued) == 0 {
		sys.Confirmation(event, sys.MsgVoiceQueueEmpty)
		return
	}

	var sb strings.Builder
	if current != nil {
		state := "Now playing"
		if p.State() == proc.StatePaused {
			state = "Paused"
		}
		fmt.Fprintf(&sb, "**%s:** %s\n", state, current)
	}
	if len(queued) > 0 {
		sb.WriteString("\n**Up next:**\n")
		for i, t := range queued {
			if i == maxListed {
				fmt.Fprintf(&sb, "...and %d more\n", len(queued)-maxListed)
				break
			}
			fmt.Fprintf(&sb, "%d. %s\n", i+1, t)
		}
	}

	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		AddEmbeds(discord.NewEmbedBuilder().
			SetTitle("Queue").
			SetColor(statusColor).
			SetDescription(sb.String()).
			SetFooterTextf("Volume: %.0f%%", p.Volume()).
			Build()).
		Build())
	if err != nil {
		sys.LogVoice(sys.MsgVoiceRespondFail, err)
	}
}
