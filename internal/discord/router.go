package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc handles one slash command or component interaction.
type HandlerFunc func(ctx context.Context, in *Interaction)

// commandEntry stores a command definition along with its handler.
type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers.
type CommandRouter struct {
	mu         sync.RWMutex
	commands   map[string]commandEntry // command name → entry
	components map[string]HandlerFunc  // custom_id → handler (for buttons)
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:   make(map[string]commandEntry),
		components: make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a handler for the slash command cmd. The cmd
// definition is used when registering commands with Discord.
func (r *CommandRouter) RegisterCommand(cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = commandEntry{command: cmd, handler: handler}
}

// RegisterComponent registers a handler for a button custom_id.
func (r *CommandRouter) RegisterComponent(customID string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = handler
}

// ApplicationCommands returns the command definitions for registration
// with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, entry := range r.commands {
		cmds = append(cmds, entry.command)
	}
	return cmds
}

// Handle is the discordgo InteractionCreate handler.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	r.Dispatch(context.Background(), NewInteraction(s, s.State, i))
}

// Dispatch routes in to its handler. Interactions outside a guild are
// refused.
func (r *CommandRouter) Dispatch(ctx context.Context, in *Interaction) {
	ic := in.Raw()
	if ic.GuildID == "" {
		replyText(ctx, in, "Music commands only work in a server.")
		return
	}

	switch ic.Type {
	case discordgo.InteractionApplicationCommand:
		name := ic.ApplicationCommandData().Name
		r.mu.RLock()
		entry, ok := r.commands[name]
		r.mu.RUnlock()
		if !ok {
			slog.Warn("discord: unknown command", "command", name)
			replyText(ctx, in, "Unknown command.")
			return
		}
		entry.handler(ctx, in)

	case discordgo.InteractionMessageComponent:
		customID := ic.MessageComponentData().CustomID
		r.mu.RLock()
		handler, ok := r.components[customID]
		r.mu.RUnlock()
		if !ok {
			slog.Warn("discord: unknown component", "custom_id", customID)
			replyText(ctx, in, "Unknown component.")
			return
		}
		handler(ctx, in)

	default:
		slog.Warn("discord: unhandled interaction type", "type", ic.Type)
	}
}

func replyText(ctx context.Context, in *Interaction, text string) {
	if _, err := in.Reply(ctx, Reply{Content: text, Ephemeral: true}); err != nil {
		slog.Warn("discord: failed to send ephemeral response", "err", err)
	}
}
