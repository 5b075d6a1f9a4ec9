package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides who may run the disruptive music commands
// (/stop, /clear and the clear button).
type PermissionChecker struct {
	djRoleID string
}

// NewPermissionChecker creates a PermissionChecker for the given DJ role.
func NewPermissionChecker(djRoleID string) *PermissionChecker {
	return &PermissionChecker{djRoleID: djRoleID}
}

// IsDJ reports whether the interaction author may run DJ commands. With no
// DJ role configured everyone may; administrators and members with Manage
// Channels always may. Interactions without a Member (DMs) never may.
func (p *PermissionChecker) IsDJ(i *discordgo.InteractionCreate) bool {
	if p.djRoleID == "" {
		return true
	}
	if i.Member == nil {
		return false
	}
	if i.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageChannels) != 0 {
		return true
	}
	return slices.Contains(i.Member.Roles, p.djRoleID)
}
