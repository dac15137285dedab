package home

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/leeineian/jukebox/proc"
)

const statusColor = 0xFF0000

func playingStatus(t *proc.Track) proc.Status {
	s := proc.Status{Phase: proc.PhasePlaying, Title: t.Title()}
	if m := t.Metadata(); m != nil {
		s.Uploader = m.Uploader
		s.SourceURL = m.Link
		s.ThumbnailURL = m.Thumbnail
		s.Duration = m.Duration
	}
	return s
}

func statusTitle(p proc.Phase) string {
	switch p {
	case proc.PhaseError:
		return "Failed"
	case proc.PhasePlaying:
		return "Playing"
	default:
		return "Downloading"
	}
}

func statusEmbed(s proc.Status) discord.Embed {
	b := discord.NewEmbedBuilder().
		SetTitle(statusTitle(s.Phase)).
		SetColor(statusColor).
		SetDescription(s.Title).
		AddField("Progress", s.Progress(), true)
	if s.Uploader != "" {
		b.SetAuthorName(s.Uploader)
	}
	if s.SourceURL != "" {
		b.SetURL(s.SourceURL)
	}
	if s.ThumbnailURL != "" {
		b.SetThumbnail(s.ThumbnailURL)
	}
	if s.Phase == proc.PhasePlaying && s.Duration > 0 {
		b.AddField("Duration", formatDuration(s.Duration), true)
	}
	return b.Build()
}

func statusUpdate(s proc.Status) discord.MessageUpdate {
	return discord.NewMessageUpdateBuilder().
		SetContent("").
		SetEmbeds(statusEmbed(s)).
		Build()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
