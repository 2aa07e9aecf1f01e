package discord

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/enforce"
)

// capSet is a bitset of [enforce.Capability] values.
type capSet uint8

func (c capSet) has(x enforce.Capability) bool { return c&(1<<x) != 0 }

// Member adapts a guild member to [enforce.Member]. Capabilities are computed
// once, from the guild state at lookup time.
type Member struct {
	api     API
	guildID string
	userID  string
	caps    capSet
}

var _ enforce.Member = (*Member)(nil)

// ID implements enforce.Member.
func (m *Member) ID() string { return m.userID }

// Can implements enforce.Member.
func (m *Member) Can(c enforce.Capability) bool { return m.caps.has(c) }

// Ban implements enforce.Member. No message history is deleted.
func (m *Member) Ban(ctx context.Context, reason string) error {
	if err := m.api.GuildBanCreateWithReason(m.guildID, m.userID, reason, 0, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: ban %s: %w", m.userID, err)
	}
	return nil
}

// Kick implements enforce.Member.
func (m *Member) Kick(ctx context.Context, reason string) error {
	if err := m.api.GuildMemberDeleteWithReason(m.guildID, m.userID, reason, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: kick %s: %w", m.userID, err)
	}
	return nil
}

// Timeout implements enforce.Member.
func (m *Member) Timeout(ctx context.Context, d time.Duration, reason string) error {
	until := time.Now().Add(d)
	err := m.api.GuildMemberTimeout(m.guildID, m.userID, &until,
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(reason),
	)
	if err != nil {
		return fmt.Errorf("discord: timeout %s: %w", m.userID, err)
	}
	return nil
}

// capabilities returns the sanctions bot may apply to target in g. Discord
// only lets a member act on members whose highest role is strictly below
// its own, never on the owner. Administrators cannot be timed out.
func capabilities(g *discordgo.Guild, bot, target *discordgo.Member) capSet {
	if g == nil || bot == nil || target == nil || bot.User == nil || target.User == nil {
		return 0
	}
	if target.User.ID == g.OwnerID || target.User.ID == bot.User.ID {
		return 0
	}
	if bot.User.ID != g.OwnerID && highestRole(g, bot) <= highestRole(g, target) {
		return 0
	}

	perms := permissions(g, bot)
	allowed := func(p int64) bool {
		return bot.User.ID == g.OwnerID || perms&(p|discordgo.PermissionAdministrator) != 0
	}

	var c capSet
	if allowed(discordgo.PermissionBanMembers) {
		c |= 1 << enforce.CapBan
	}
	if allowed(discordgo.PermissionKickMembers) {
		c |= 1 << enforce.CapKick
	}
	if allowed(discordgo.PermissionModerateMembers) && permissions(g, target)&discordgo.PermissionAdministrator == 0 {
		c |= 1 << enforce.CapTimeout
	}
	return c
}

// permissions returns m's guild-level permissions: @everyone plus each of
// its roles.
func permissions(g *discordgo.Guild, m *discordgo.Member) int64 {
	var p int64
	for _, r := range g.Roles {
		if r.ID == g.ID || slices.Contains(m.Roles, r.ID) {
			p |= r.Permissions
		}
	}
	return p
}

// highestRole returns the position of m's highest role; 0 for @everyone.
func highestRole(g *discordgo.Guild, m *discordgo.Member) int {
	top := 0
	for _, r := range g.Roles {
		if slices.Contains(m.Roles, r.ID) && r.Position > top {
			top = r.Position
		}
	}
	return top
}
