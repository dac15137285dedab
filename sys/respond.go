package sys

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
)

const (
	confusionMark    = "❓"
	confirmationMark = "👌"
)

// Confusion tells the user their command could not be carried out.
func Confusion(event *events.ApplicationCommandInteractionCreate, reason string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(confusionMark + " " + reason).
		SetEphemeral(true).
		Build())
	if err != nil {
		LogVoice(MsgVoiceRespondFail, err)
	}
}

// Confirmation acknowledges a command that took effect.
func Confirmation(event *events.ApplicationCommandInteractionCreate, message string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(confirmationText(message)).
		Build())
	if err != nil {
		LogVoice(MsgVoiceRespondFail, err)
	}
}

// ConfusionDeferred is Confusion for an interaction that was already deferred.
func ConfusionDeferred(event *events.ApplicationCommandInteractionCreate, reason string) {
	UpdateDeferred(event, discord.NewMessageUpdateBuilder().
		SetContent(confusionMark+" "+reason).
		ClearEmbeds().
		Build())
}

// ConfirmationDeferred is Confirmation for an interaction that was already deferred.
func ConfirmationDeferred(event *events.ApplicationCommandInteractionCreate, message string) {
	UpdateDeferred(event, discord.NewMessageUpdateBuilder().
		SetContent(confirmationText(message)).
		Build())
}

func confirmationText(message string) string {
	if message == "" {
		return confirmationMark
	}
	return confirmationMark + " " + message
}

func UpdateDeferred(event *events.ApplicationCommandInteractionCreate, update discord.MessageUpdate) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), update)
	if err != nil {
		LogVoice(MsgVoiceRespondFail, err)
	}
}
