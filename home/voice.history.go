package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/sys"
)

func handleHistory(event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	guildID := *event.GuildID()
	records, err := sys.GetRecentPlays(ctx, guildID, 10)
	if err != nil {
		sys.LogDatabase("Failed to fetch history: %v", err)
		sys.Confusion(event, sys.ErrVoiceHistoryFailed)
		return
	}
	if len(records) == 0 {
		sys.Confirmation(event, sys.MsgVoiceNoHistory)
		return
	}
	total, _ := sys.GetPlayCount(ctx, guildID)

	var sb strings.Builder
	for _, r := range records {
		name := r.Title
		if r.Remote {
			name = fmt.Sprintf("[%s](%s)", r.Title, r.Source)
		}
		fmt.Fprintf(&sb, "<t:%d:R> %s by <@%s>\n", r.PlayedAt.Unix(), name, r.UserID)
	}

	err = event.CreateMessage(discord.NewMessageCreateBuilder().
		AddEmbeds(discord.NewEmbedBuilder().
			SetTitle("Recently Played").
			SetColor(statusColor).
			SetDescription(sb.String()).
			SetFooterTextf("%d plays in total", total).
			Build()).
		Build())
	if err != nil {
		sys.LogVoice(sys.MsgVoiceRespondFail, err)
	}
}
