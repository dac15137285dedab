package proc

import (
	"iter"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

type Vacancy int

const (
	Occupied Vacancy = iota
	// Vacant means no human is left in the session's channel.
	Vacant
	// BotDisconnected means the bot was removed from voice by someone else.
	BotDisconnected
)

func (v Vacancy) String() string {
	switch v {
	case Vacant:
		return "vacant"
	case BotDisconnected:
		return "bot disconnected"
	default:
		return "occupied"
	}
}

// CheckVacancy decides whether changed leaves a session with nobody to play
// for. states are the guild's current voice states. A session that is not
// attached is never vacant: it has not joined yet, or is already leaving.
func CheckVacancy(selfID, channelID snowflake.ID, attached bool, changed discord.VoiceState, states iter.Seq[discord.VoiceState], isBot func(snowflake.ID) bool) Vacancy {
	if !attached {
		return Occupied
	}
	if changed.UserID == selfID {
		if changed.ChannelID == nil {
			return BotDisconnected
		}
		return Occupied
	}
	if HumanCount(selfID, channelID, states, isBot) == 0 {
		return Vacant
	}
	return Occupied
}

// HumanCount counts the members in channelID other than the bot itself and
// other bots. Members missing from the cache count as human.
func HumanCount(selfID, channelID snowflake.ID, states iter.Seq[discord.VoiceState], isBot func(snowflake.ID) bool) int {
	count := 0
	for state := range states {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == selfID {
			continue
		}
		if !isBot(state.UserID) {
			count++
		}
	}
	return count
}
