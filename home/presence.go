package home

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// configKeyPresence turns the rotating presence off when set to "false".
const configKeyPresence = "presence_visible"

func rotationInterval() time.Duration {
	return time.Duration(30+rand.Intn(31)) * time.Second
}

type presenceRotator struct {
	client *bot.Client
	j      *proc.Jukebox
	last   string
}

func startPresence(client *bot.Client, j *proc.Jukebox) {
	r := &presenceRotator{client: client, j: j}
	sys.RegisterDaemon(sys.LogPresence, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { r.run(ctx) }, nil
	})
}

func (r *presenceRotator) run(ctx context.Context) {
	for {
		next := rotationInterval()
		r.update(ctx, next)
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return
		}
	}
}

func (r *presenceRotator) update(ctx context.Context, next time.Duration) {
	if visible, _ := sys.GetBotConfig(ctx, configKeyPresence); visible == "false" {
		_ = r.client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	text := pickPresence(r.presences(), r.last)
	r.last = text

	err := r.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogPresence(sys.MsgPresenceUpdateFail, err)
		return
	}
	sys.LogPresence(sys.MsgPresenceRotated, text, next)
}

func (r *presenceRotator) presences() []string {
	out := []string{"/voice play"}
	if n := r.j.Playing(); n > 0 {
		out = append(out, fmt.Sprintf("%d %s", n, plural(n, "server", "servers")))
	}
	uptime := time.Since(sys.StartupTime)
	out = append(out, fmt.Sprintf("for %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	return out
}

// pickPresence picks a random entry other than last, unless last is all there is.
func pickPresence(options []string, last string) string {
	var choices []string
	for _, o := range options {
		if o != last {
			choices = append(choices, o)
		}
	}
	if len(choices) == 0 {
		return options[0]
	}
	return choices[rand.Intn(len(choices))]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
