package home

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/proc/transcode"
	"github.com/leeineian/jukebox/sys"
)

var (
	jukebox     atomic.Pointer[proc.Jukebox]
	jukeboxOnce sync.Once
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		jukeboxOnce.Do(func() { startJukebox(client) })
	})

	sys.RegisterVoiceStateUpdateHandler(func(event *events.GuildVoiceStateUpdate) {
		if j := jukebox.Load(); j != nil {
			j.OnVoiceStateUpdate(event)
		}
	})

	perms := discord.PermissionConnect | discord.PermissionSpeak
	sys.RegisterInlineCommand(discord.SlashCommandCreate{
		Name:                     "voice",
		Description:              "Voice System",
		DefaultMemberPermissions: omit.New(&perms),
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a local clip or a link",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "source",
						Description: "Clip name or URL",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "times",
						Description: "How many times to play it",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "volume",
				Description: "Set the playback volume",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionFloat{
						Name:        "percent",
						Description: "Volume from 0 to 100",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current track",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leave",
				Description: "Stop audio and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop audio and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the current queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clips",
				Description: "List local clips",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "category",
						Description: "Only list clips in this folder",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "history",
				Description: "Show what was played recently",
			},
		},
	}, handleVoice)
}

func startJukebox(client *bot.Client) {
	cfg := sys.GlobalConfig
	j, err := proc.NewJukebox(proc.JukeboxConfig{
		ClipDir:       cfg.ClipDir,
		CacheDir:      cfg.CacheDir,
		DefaultVolume: cfg.DefaultVolume,
		Extractor:     proc.NewYTDLP(),
		Streamer:      transcode.Opus{},
		Settings:      sys.AudioStore{},
		NewDevice: func(guildID, channelID snowflake.ID) proc.Device {
			return proc.NewVoiceDevice(client, guildID, channelID)
		},
	})
	if err != nil {
		sys.LogError(sys.MsgGenericError, err)
		return
	}
	jukebox.Store(j)
	startPresence(client, j)

	sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
		return true, func() {}, func() {
			sys.LogVoice("Shutting down voice sessions...")
			j.Shutdown(context.Background())
		}
	})
}

// handleVoice runs on the gateway goroutine so plays are admitted in arrival
// order. Everything that talks to Discord runs on its own goroutine.
func handleVoice(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil || event.GuildID() == nil {
		return
	}

	j := jukebox.Load()
	if j == nil {
		sys.SafeGo(func() { sys.Confusion(event, sys.ErrVoiceNoSessions) })
		return
	}

	if *data.SubCommandName == "play" {
		handlePlay(event, data, j)
		return
	}

	sys.SafeGo(func() {
		switch *data.SubCommandName {
		case "volume":
			handleVolume(event, data, j)
		case "pause":
			handlePause(event, j)
		case "resume":
			handleResume(event, j)
		case "skip":
			handleSkip(event, j)
		case "leave", "stop":
			handleLeave(event, j)
		case "queue":
			handleQueue(event, j)
		case "clips":
			handleClips(event, data, j)
		case "history":
			handleHistory(event)
		}
	})
}

// describe turns an engine error into the reason shown to the user.
func describe(err error) string {
	switch {
	case errors.Is(err, proc.ErrNotFound):
		return sys.ErrVoiceClipNotFound
	case errors.Is(err, proc.ErrUnsupportedLink):
		return sys.ErrVoiceBadLink
	case errors.Is(err, proc.ErrMetadataIncomplete):
		return sys.ErrVoiceMetadataFailed
	case errors.Is(err, proc.ErrNetworkFailure):
		return sys.ErrVoiceDownloadFailed
	case errors.Is(err, proc.ErrInvalidArgument):
		return sys.ErrVoiceInvalidTimes
	case errors.Is(err, proc.ErrNothingPlaying):
		return sys.ErrVoiceNothingPlaying
	case errors.Is(err, proc.ErrAlreadyPaused):
		return sys.ErrVoiceAlreadyPaused
	case errors.Is(err, proc.ErrNotPaused):
		return sys.ErrVoiceNotPaused
	case errors.Is(err, proc.ErrDeviceNotAttached), errors.Is(err, proc.ErrSessionClosed):
		return sys.ErrVoiceNotConnected
	default:
		return err.Error()
	}
}
