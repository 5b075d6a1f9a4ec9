// Package commands implements songbird's Discord slash command handlers.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/songbird/internal/discord"
	"github.com/MrWong99/songbird/internal/history"
	"github.com/MrWong99/songbird/internal/playback"
)

// commandTimeout bounds one command, including resolving and joining voice.
const commandTimeout = time.Minute

// historyLimit is how many entries /history lists.
const historyLimit = 10

// Player is the playback surface the music commands drive.
// *playback.Orchestrator satisfies it.
type Player interface {
	Enqueue(ctx context.Context, in playback.Interaction, query string) error
	Skip(ctx context.Context, in playback.Interaction) error
	Stop(ctx context.Context, in playback.Interaction) error
	ClearQueue(ctx context.Context, in playback.Interaction) error
	Queue(guildID string) (playback.Snapshot, bool)
}

var _ Player = (*playback.Orchestrator)(nil)

// MusicCommands holds the dependencies for the music slash commands and the
// now-playing buttons.
type MusicCommands struct {
	player    Player
	history   history.Store
	perms     *discord.PermissionChecker
	presenter *discord.Presenter
}

// NewMusicCommands creates a MusicCommands and registers its handlers with
// the bot's router. hist may be nil, which disables /history.
func NewMusicCommands(bot *discord.Bot, player Player, hist history.Store) *MusicCommands {
	mc := &MusicCommands{
		player:    player,
		history:   hist,
		perms:     bot.Permissions(),
		presenter: bot.Presenter(),
	}
	mc.Register(bot.Router())
	return mc
}

// Register registers the music commands and buttons with the router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	for _, def := range mc.Definitions() {
		router.RegisterCommand(def, mc.handler(def.Name))
	}
	router.RegisterComponent(discord.ButtonSkip, mc.handler("skip"))
	router.RegisterComponent(discord.ButtonClear, mc.handler("clear"))
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (mc *MusicCommands) Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a song or playlist in your voice channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "A link or search terms",
					Required:    true,
				},
			},
		},
		{Name: "skip", Description: "Skip the current song"},
		{Name: "stop", Description: "Stop playing and leave the voice channel"},
		{Name: "clear", Description: "Remove every queued song except the current one"},
		{Name: "queue", Description: "Show the queue"},
		{Name: "history", Description: "Show recently played songs"},
	}
}

// handler wraps the named command with a timeout and error reporting.
func (mc *MusicCommands) handler(name string) discord.HandlerFunc {
	return func(ctx context.Context, in *discord.Interaction) {
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		var err error
		switch name {
		case "play":
			err = mc.Play(ctx, in)
		case "skip":
			err = mc.player.Skip(ctx, in)
		case "stop":
			err = mc.Stop(ctx, in)
		case "clear":
			err = mc.Clear(ctx, in)
		case "queue":
			err = mc.Queue(ctx, in)
		case "history":
			err = mc.History(ctx, in)
		default:
			err = fmt.Errorf("commands: unknown command %q", name)
		}
		if err != nil {
			slog.Debug("commands: command failed", "command", name, "guild_id", in.GuildID(), "err", err)
			mc.presenter.ReplyError(ctx, in, err)
		}
	}
}

// Play handles /play. On success the playback events answer the
// interaction.
func (mc *MusicCommands) Play(ctx context.Context, in *discord.Interaction) error {
	query := optionString(in.Raw(), "query")
	if query == "" {
		return &playback.ResolutionError{Query: query, Err: playback.ErrNotFound}
	}
	return mc.player.Enqueue(ctx, in, query)
}

// Stop handles /stop. Only DJs may stop playback.
func (mc *MusicCommands) Stop(ctx context.Context, in *discord.Interaction) error {
	if !mc.perms.IsDJ(in.Raw()) {
		return discord.ErrNotDJ
	}
	return mc.player.Stop(ctx, in)
}

// Clear handles /clear and the clear button. Only DJs may clear the queue.
func (mc *MusicCommands) Clear(ctx context.Context, in *discord.Interaction) error {
	if !mc.perms.IsDJ(in.Raw()) {
		return discord.ErrNotDJ
	}
	return mc.player.ClearQueue(ctx, in)
}

// Queue handles /queue.
func (mc *MusicCommands) Queue(ctx context.Context, in *discord.Interaction) error {
	snap, _ := mc.player.Queue(in.GuildID())
	return mc.presenter.ReplyQueue(ctx, in, snap)
}

// History handles /history.
func (mc *MusicCommands) History(ctx context.Context, in *discord.Interaction) error {
	if mc.history == nil {
		return mc.presenter.ReplyEmbed(ctx, in, func(e *discordgo.MessageEmbed) {
			e.Title = "History"
			e.Description = "Play history is disabled."
		}, true)
	}
	entries, err := mc.history.Recent(ctx, in.GuildID(), historyLimit)
	if err != nil {
		return fmt.Errorf("commands: load history: %w", err)
	}
	return mc.presenter.ReplyEmbed(ctx, in, func(e *discordgo.MessageEmbed) {
		e.Title = "Recently played"
		e.Description = formatHistory(entries)
	}, true)
}

func formatHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return "Nothing has been played yet."
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s", i+1, e.Title)
		if e.Requester.Name != "" {
			fmt.Fprintf(&b, " (%s)", e.Requester.Name)
		}
		fmt.Fprintf(&b, " <t:%d:R>\n", e.PlayedAt.Unix())
	}
	return b.String()
}

// optionString returns the string value of a top-level command option.
func optionString(i *discordgo.InteractionCreate, name string) string {
	if i.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}
