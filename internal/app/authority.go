package app

import (
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type AuthorityConfig struct {
	// TriggerRoles gate the trigger room. Empty lets everyone in.
	TriggerRoles  []string `mapstructure:"trigger_roles"`
	ElevatedRoles []string `mapstructure:"elevated_roles"`
	ExcludedRole  string   `mapstructure:"excluded_role"`
}

type UserLookup interface {
	LookupUser(id domain.UserID) (domain.User, bool)
}

// RoleAuthority answers permission questions from the roles users hold.
// Unknown users are ineligible, not excluded and not elevated.
type RoleAuthority struct {
	users    UserLookup
	trigger  []domain.Role
	elevated []domain.Role
	excluded domain.Role
}

func NewRoleAuthority(users UserLookup, cfg AuthorityConfig) *RoleAuthority {
	return &RoleAuthority{
		users:    users,
		trigger:  toRoles(cfg.TriggerRoles),
		elevated: toRoles(cfg.ElevatedRoles),
		excluded: domain.Role(cfg.ExcludedRole),
	}
}

func (a *RoleAuthority) IsEligibleForTriggerRoom(id domain.UserID) bool {
	u, ok := a.users.LookupUser(id)
	if !ok || u.Bot {
		return false
	}
	return len(a.trigger) == 0 || u.HasAnyRole(a.trigger)
}

func (a *RoleAuthority) IsExcludedFromRooms(id domain.UserID) bool {
	if a.excluded == "" {
		return false
	}
	u, ok := a.users.LookupUser(id)
	return ok && u.HasRole(a.excluded)
}

func (a *RoleAuthority) HasElevatedRoomAuthority(id domain.UserID) bool {
	if id == domain.ServiceActor {
		return true
	}
	u, ok := a.users.LookupUser(id)
	return ok && u.HasAnyRole(a.elevated)
}

func toRoles(in []string) []domain.Role {
	out := make([]domain.Role, 0, len(in))
	for _, r := range in {
		if r != "" {
			out = append(out, domain.Role(r))
		}
	}
	return out
}

var _ core.Authority = (*RoleAuthority)(nil)
