package discord

import (
	"context"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// managerPermissions are guild permissions that count as the manager role.
const managerPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild

// Access decides who may start and stop monitoring and change settings.
type Access struct {
	roles []string
}

// NewAccess returns an Access granting members holding any of roles. Empty
// ids are ignored; with no roles left everyone is a manager.
func NewAccess(roles ...string) *Access {
	a := &Access{}
	for _, r := range roles {
		if r != "" && !slices.Contains(a.roles, r) {
			a.roles = append(a.roles, r)
		}
	}
	return a
}

// IsManager reports whether the author of i may run privileged commands.
// Guild administrators always may. Interactions outside a guild never may
// once roles are configured.
func (a *Access) IsManager(i *discordgo.InteractionCreate) bool {
	if len(a.roles) == 0 {
		return true
	}
	m := i.Member
	if m == nil {
		return false
	}
	if m.Permissions&managerPermissions != 0 {
		return true
	}
	return slices.ContainsFunc(m.Roles, func(r string) bool { return slices.Contains(a.roles, r) })
}

// Require wraps h so that only managers reach it. Others are told they need
// the manager role to do action, e.g. "start monitoring".
func (a *Access) Require(action string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, s Responder, i *discordgo.InteractionCreate) {
		if !a.IsManager(i) {
			Replyf(s, i, "You need the manager role to %s.", action)
			return
		}
		h(ctx, s, i)
	}
}
