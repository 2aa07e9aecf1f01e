package voicecmd

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/discord"
)

// ReplyForbidden is sent to members who may not use /voice.
const ReplyForbidden = "You need the moderator role or the Manage Server permission to use this command."

// Locator finds a member's current voice channel. [*discord.Guilds]
// implements it.
type Locator interface {
	VoiceChannelOf(guildID, userID string) string
}

// SlashCommands holds the dependencies for the /voice slash command.
type SlashCommands struct {
	ctx      context.Context
	sessions Sessions
	locator  Locator
	perms    *discord.PermissionChecker
}

// NewSlashCommands creates SlashCommands and registers its handlers with
// router. Joins started from a command run under ctx.
func NewSlashCommands(ctx context.Context, router *discord.CommandRouter, sessions Sessions, locator Locator, perms *discord.PermissionChecker) *SlashCommands {
	sc := &SlashCommands{ctx: ctx, sessions: sessions, locator: locator, perms: perms}
	sc.Register(router)
	return sc
}

// Register registers the /voice command group with the router.
func (sc *SlashCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("voice", sc.Definition(), func(r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "Please use a subcommand: `/voice join` or `/voice leave`.")
	})
	router.RegisterHandler("voice/join", sc.handleJoin)
	router.RegisterHandler("voice/leave", sc.handleLeave)
}

// Definition returns the ApplicationCommand definition for Discord.
func (sc *SlashCommands) Definition() *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{
		Name:         "voice",
		Description:  "Control Kojo's voice moderation",
		DMPermission: &dm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Listen in your current voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Stop listening in this server",
			},
		},
	}
}

func (sc *SlashCommands) handleJoin(r discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.perms.IsModerator(i) {
		discord.RespondEphemeral(r, i, ReplyForbidden)
		return
	}
	channelID := sc.locator.VoiceChannelOf(i.GuildID, interactionUserID(i))
	if channelID == "" {
		discord.RespondEphemeral(r, i, ReplyNotInVoice)
		return
	}

	// Joining waits for the voice handshake, which can exceed the
	// interaction response window.
	discord.DeferReply(r, i)
	discord.FollowUp(r, i, Join(sc.ctx, sc.sessions, i.GuildID, channelID))
}

func (sc *SlashCommands) handleLeave(r discord.Responder, i *discordgo.InteractionCreate) {
	if !sc.perms.IsModerator(i) {
		discord.RespondEphemeral(r, i, ReplyForbidden)
		return
	}
	discord.RespondEphemeral(r, i, Leave(sc.sessions, i.GuildID))
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
