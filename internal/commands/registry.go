package commands

import (
	"discord-automod/internal/commands/automod"
	"discord-automod/internal/presets"
	"discord-automod/internal/services"

	"github.com/bwmarrin/discordgo"
)

// Handler serves one top level slash command
type Handler func(s *discordgo.Session, i *discordgo.InteractionCreate, svc *services.AutomodService)

// Registry maps command names to their definition and handler
type Registry struct {
	Commands []*discordgo.ApplicationCommand
	handlers map[string]Handler
}

func NewRegistry(catalogue *presets.Catalogue, pingers ...Pinger) *Registry {
	return &Registry{
		Commands: append(automod.Definitions(catalogue), Ping),
		handlers: map[string]Handler{
			"automod": automod.HandleAutomod,
			"warn":    automod.HandleWarn,
			"points":  automod.HandlePoints,
			"ping": func(s *discordgo.Session, i *discordgo.InteractionCreate, _ *services.AutomodService) {
				HandlePing(s, i, pingers)
			},
		},
	}
}

// Handler returns the handler for a command, or nil
func (r *Registry) Handler(name string) Handler {
	return r.handlers[name]
}
