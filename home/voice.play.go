package home

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// handlePlay takes the caller's place in the play order before anything can
// block, then resolves and enqueues on its own goroutine.
func handlePlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, j *proc.Jukebox) {
	guildID := *event.GuildID()
	channelID, ok := proc.UserChannel(event.Client(), guildID, event.User().ID)
	if !ok {
		sys.SafeGo(func() { sys.Confusion(event, sys.ErrVoiceNotInChannel) })
		return
	}

	source := data.String("source")
	times, _ := data.OptString("times")

	p := j.Prepare(guildID, channelID)
	ticket := p.Admit()

	sys.SafeGo(func() {
		if err := event.DeferCreateMessage(false); err != nil {
			ticket.Release()
			sys.LogVoice(sys.MsgVoiceRespondFail, err)
			return
		}

		ctx, cancel := sessionContext(p)
		defer cancel()

		feed := proc.NewStatusFeed(sys.GlobalConfig.ProgressInterval, func(ctx context.Context, s proc.Status) error {
			_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), statusUpdate(s))
			return err
		})
		t, err := p.Play(ctx, ticket, proc.PlayRequest{
			Source:   source,
			Times:    times,
			UserID:   event.User().ID,
			Reporter: feed,
		})
		feed.Close()

		if err != nil {
			sys.ConfusionDeferred(event, playFailure(err))
			return
		}
		if t.Remote() {
			sys.UpdateDeferred(event, statusUpdate(playingStatus(t)))
			return
		}
		sys.ConfirmationDeferred(event, queuedMessage(t))
	})
}

// sessionContext is cancelled when the session is torn down or the bot shuts down.
func sessionContext(p *proc.SoundPlayer) (context.Context, context.CancelFunc) {
	parent := sys.AppContext
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-p.Closed():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func playFailure(err error) string {
	var se *proc.StateError
	if errors.As(err, &se) && se.Op == "play" && errors.Is(err, proc.ErrDeviceNotAttached) {
		return sys.ErrVoiceJoinFailed
	}
	if errors.Is(err, context.Canceled) {
		return sys.ErrVoiceNotConnected
	}
	return describe(err)
}

func queuedMessage(t *proc.Track) string {
	if t.Times() > 1 {
		return fmt.Sprintf("Queued **%s** ×%d", t.Title(), t.Times())
	}
	return fmt.Sprintf("Queued **%s**", t.Title())
}
