// Package authz holds the single authorization predicate for the register.
package authz

import "strings"

// Role is a caller's role as carried by its access token.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleMentor    Role = "mentor"
	RoleMember    Role = "member"
	RoleCommunity Role = "community"
)

// Roles lists the known roles, staff first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleMentor, RoleMember, RoleCommunity}
}

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleAdmin, RoleMentor, RoleMember, RoleCommunity:
		return r, true
	default:
		return "", false
	}
}

// Action is something a caller asks the register to do.
type Action string

const (
	SignInSelf     Action = "sign_in_self"
	SignOutSelf    Action = "sign_out_self"
	ViewOwnHistory Action = "view_own_history"

	SignInOther  Action = "sign_in_other"
	SignOutOther Action = "sign_out_other"
	BulkSignOut  Action = "bulk_sign_out"
	ViewRoster   Action = "view_roster"
	ViewStats    Action = "view_stats"
	ViewHistory  Action = "view_history"
)

var staffActions = map[Action]struct{}{
	SignInSelf:     {},
	SignOutSelf:    {},
	ViewOwnHistory: {},
	SignInOther:    {},
	SignOutOther:   {},
	BulkSignOut:    {},
	ViewRoster:     {},
	ViewStats:      {},
	ViewHistory:    {},
}

var selfActions = map[Action]struct{}{
	SignInSelf:     {},
	SignOutSelf:    {},
	ViewOwnHistory: {},
}

// Allow reports whether role may perform action. Unknown roles and actions are denied.
func Allow(role Role, action Action) bool {
	var set map[Action]struct{}
	switch role {
	case RoleAdmin, RoleMentor:
		set = staffActions
	case RoleMember, RoleCommunity:
		set = selfActions
	default:
		return false
	}
	_, ok := set[action]
	return ok
}
