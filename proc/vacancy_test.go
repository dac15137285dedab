package proc

import (
	"slices"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

func TestCheckVacancy(t *testing.T) {
	const (
		self     = snowflake.ID(1)
		alice    = snowflake.ID(2)
		bob      = snowflake.ID(3)
		otherBot = snowflake.ID(4)
	)
	channel := testChannel
	elsewhere := testChannel + 1

	in := func(user snowflake.ID, ch snowflake.ID) discord.VoiceState {
		return discord.VoiceState{GuildID: testGuild, UserID: user, ChannelID: &ch}
	}
	left := func(user snowflake.ID) discord.VoiceState {
		return discord.VoiceState{GuildID: testGuild, UserID: user}
	}
	isBot := func(id snowflake.ID) bool { return id == otherBot }

	tests := []struct {
		name     string
		attached bool
		changed  discord.VoiceState
		states   []discord.VoiceState
		want     Vacancy
	}{
		{"last human leaves", true, left(alice), []discord.VoiceState{in(self, channel)}, Vacant},
		{"a human stays", true, left(alice), []discord.VoiceState{in(self, channel), in(bob, channel)}, Occupied},
		{"humans only elsewhere", true, in(alice, elsewhere), []discord.VoiceState{in(self, channel), in(alice, elsewhere), in(bob, elsewhere)}, Vacant},
		{"other bots do not count", true, left(alice), []discord.VoiceState{in(self, channel), in(otherBot, channel)}, Vacant},
		{"human joins", true, in(alice, channel), []discord.VoiceState{in(self, channel), in(alice, channel)}, Occupied},
		{"bot disconnected", true, left(self), []discord.VoiceState{in(alice, channel)}, BotDisconnected},
		{"bot moved", true, in(self, elsewhere), []discord.VoiceState{in(self, elsewhere), in(alice, channel)}, Occupied},
		{"detached ignores leaves", false, left(alice), nil, Occupied},
		{"detached ignores bot disconnect", false, left(self), nil, Occupied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckVacancy(self, channel, tt.attached, tt.changed, slices.Values(tt.states), isBot)
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHumanCount(t *testing.T) {
	ch := testChannel
	other := testChannel + 1
	states := []discord.VoiceState{
		{UserID: 1, ChannelID: &ch},
		{UserID: 2, ChannelID: &ch},
		{UserID: 3, ChannelID: &ch},
		{UserID: 4, ChannelID: &other},
		{UserID: 5},
	}
	isBot := func(id snowflake.ID) bool { return id == 3 }

	if n := HumanCount(1, ch, slices.Values(states), isBot); n != 1 {
		t.Errorf("Expected 1 human, got %d", n)
	}
	if n := HumanCount(1, other, slices.Values(states), isBot); n != 1 {
		t.Errorf("Expected 1 human elsewhere, got %d", n)
	}
}
