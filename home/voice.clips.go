package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const maxClipChars = 3800

func handleClips(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, j *proc.Jukebox) {
	category, _ := data.OptString("category")
	clips := j.Clips().List(strings.TrimSpace(category))
	if len(clips) == 0 {
		sys.Confusion(event, sys.MsgVoiceNoClips)
		return
	}

	var sb strings.Builder
	if category == "" {
		if cats := j.Clips().Categories(); len(cats) > 0 {
			fmt.Fprintf(&sb, "**Categories:** %s\n\n", strings.Join(cats, ", "))
		}
	}
	for i, c := range clips {
		line := "`" + c.Name + "`"
		if c.Category != "" && category == "" {
			line += " (" + c.Category + ")"
		}
		if sb.Len()+len(line) > maxClipChars {
			fmt.Fprintf(&sb, "...and %d more", len(clips)-i)
			break
		}
		sb.WriteString(line + "\n")
	}

	title := "Clips"
	if category != "" {
		title += ": " + category
	}
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		AddEmbeds(discord.NewEmbedBuilder().
			SetTitle(title).
			SetColor(statusColor).
			SetDescription(sb.String()).
			SetFooterTextf("%d clips", len(clips)).
			Build()).
		SetEphemeral(true).
		Build())
	if err != nil {
		sys.LogVoice(sys.MsgVoiceRespondFail, err)
	}
}
