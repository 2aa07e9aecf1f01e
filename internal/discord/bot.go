// Package discord is Kojo's Discord layer. It owns the discordgo.Session
// lifecycle, turns gateway events into moderation and voice inputs, routes
// slash commands, and adapts guild members, channels and the audit channel
// to the interfaces the moderation core expects.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/dispatch"
	"github.com/MrWong99/kojo/internal/voice"
	"github.com/MrWong99/kojo/pkg/audio"
	discordaudio "github.com/MrWong99/kojo/pkg/audio/discord"
)

// Intents are the gateway intents Kojo needs: message content for text
// moderation, voice states for auto join, and members for enforcement.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildVoiceStates

// Config holds Discord bot configuration.
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID scopes slash command registration. Empty registers globally.
	GuildID string

	// ModeratorRoleID may run privileged slash commands.
	ModeratorRoleID string

	// MaxUtterance caps one voice capture.
	MaxUtterance time.Duration
}

// MessageHandler moderates chat messages. [*dispatch.Orchestrator]
// implements it.
type MessageHandler interface {
	Handle(ctx context.Context, m dispatch.Message) (dispatch.Outcome, bool)
}

// VoiceStateHandler reacts to members moving between voice channels.
// [*voice.Manager] implements it.
type VoiceStateHandler interface {
	HandleStateChange(ctx context.Context, c voice.StateChange)
}

// Invocation is a guild message that may carry a text command.
type Invocation struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Content   string

	// VoiceChannelID is the author's current voice channel, or "".
	VoiceChannelID string
}

// TextCommands answers prefixed text commands. ok is false when content is
// not a command.
type TextCommands interface {
	Check(ctx context.Context, inv Invocation) (reply string, ok bool)
}

// Handlers are the components the bot feeds gateway events to. Nil fields
// are skipped.
type Handlers struct {
	Messages MessageHandler
	Voice    VoiceStateHandler
	Commands TextCommands
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	platform  *discordaudio.Platform
	router    *CommandRouter
	perms     *PermissionChecker
	guilds    *Guilds
	guildID   string
	commands  []*discordgo.ApplicationCommand
	connected atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot. The gateway is not opened until [Bot.Run].
func New(cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = Intents

	var opts []discordaudio.Option
	if cfg.MaxUtterance > 0 {
		opts = append(opts, discordaudio.WithMaxUtterance(cfg.MaxUtterance))
	}

	b := &Bot{
		session:  session,
		platform: discordaudio.New(session, opts...),
		router:   NewCommandRouter(),
		perms:    NewPermissionChecker(cfg.ModeratorRoleID),
		guilds:   NewGuilds(session.State, session),
		guildID:  cfg.GuildID,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.connected.Store(true)
		slog.Info("discord: ready", "user", r.User.String(), "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		b.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})

	return b, nil
}

// Attach feeds message and voice state events to h. Goroutines started for
// events inherit ctx. Call before [Bot.Run].
func (b *Bot) Attach(ctx context.Context, h Handlers) {
	b.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessage(ctx, h, m.Message)
	})
	if h.Voice != nil {
		b.session.AddHandler(func(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
			h.Voice.HandleStateChange(ctx, b.stateChange(vs))
		})
	}
}

// onMessage runs text commands and moderation independently, so a command
// message is still moderated.
func (b *Bot) onMessage(ctx context.Context, h Handlers, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	if h.Commands != nil && m.GuildID != "" {
		inv := Invocation{
			GuildID:        m.GuildID,
			ChannelID:      m.ChannelID,
			MessageID:      m.ID,
			UserID:         m.Author.ID,
			Content:        m.Content,
			VoiceChannelID: b.guilds.VoiceChannelOf(m.GuildID, m.Author.ID),
		}
		go func() {
			reply, ok := h.Commands.Check(ctx, inv)
			if !ok || reply == "" {
				return
			}
			if _, err := b.session.ChannelMessageSendReply(m.ChannelID, reply, m.Reference(), discordgo.WithContext(ctx)); err != nil {
				slog.Warn("discord: failed to reply to command", "channel_id", m.ChannelID, "err", err)
			}
		}()
	}

	if h.Messages != nil {
		h.Messages.Handle(ctx, MessageFrom(b.guilds, m))
	}
}

func (b *Bot) stateChange(vs *discordgo.VoiceStateUpdate) voice.StateChange {
	c := voice.StateChange{GuildID: vs.GuildID, UserID: vs.UserID, After: vs.ChannelID}
	if vs.BeforeUpdate != nil {
		c.Before = vs.BeforeUpdate.ChannelID
	}
	switch {
	case vs.Member != nil && vs.Member.User != nil:
		c.Bot = vs.Member.User.Bot
	default:
		if m, err := b.session.State.Member(vs.GuildID, vs.UserID); err == nil && m.User != nil {
			c.Bot = m.User.Bot
		}
	}
	return c
}

// Platform returns the audio.Platform for voice channel connections.
func (b *Bot) Platform() audio.Platform {
	return b.platform
}

// Guilds returns the guild adapter backed by the gateway state.
func (b *Bot) Guilds() *Guilds {
	return b.guilds
}

// API returns the REST client.
func (b *Bot) API() API {
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Connected reports whether the gateway session is up.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run opens the gateway, registers slash commands and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}

	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close unregisters guild commands and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.guildID != "" && len(b.commands) > 0 && b.session.State.User != nil {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		b.connected.Store(false)
		slog.Info("discord bot closed")
	})
	return closeErr
}
