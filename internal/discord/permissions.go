package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may run privileged slash commands: members
// holding the configured moderator role and members with the Manage Server
// (or Administrator) permission.
type PermissionChecker struct {
	moderatorRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given role ID.
// An empty ID leaves only the permission check.
func NewPermissionChecker(moderatorRoleID string) *PermissionChecker {
	return &PermissionChecker{moderatorRoleID: moderatorRoleID}
}

// IsModerator reports whether the interaction author may moderate. Returns
// false for interactions without a Member (direct messages).
func (p *PermissionChecker) IsModerator(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if i.Member.Permissions&(discordgo.PermissionManageGuild|discordgo.PermissionAdministrator) != 0 {
		return true
	}
	return p.moderatorRoleID != "" && slices.Contains(i.Member.Roles, p.moderatorRoleID)
}
