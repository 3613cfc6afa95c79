package utils

import (
	"github.com/bwmarrin/discordgo"
)

// SendError sends an ephemeral error message
func SendError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       EmojiCross + " Error",
					Description: message,
					Color:       ColorRed,
				},
			},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

// SendSuccess sends an ephemeral success message
func SendSuccess(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: EmojiTick + " " + message,
					Color:       ColorGreen,
				},
			},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
}

// SendEmbed sends an ephemeral embed
func SendEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}
