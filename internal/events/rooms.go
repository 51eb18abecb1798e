package events

import (
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Room names a fan-out target on the event bus.
type Room string

const (
	userRoomPrefix = "user:"
	roleRoomPrefix = "role:"
)

// UserRoom targets every connection of one identity.
func UserRoom(userID string) Room {
	return Room(userRoomPrefix + userID)
}

// RoleRoom targets every connection authenticated as role.
func RoleRoom(role domain.Role) Room {
	return Room(roleRoomPrefix + string(role))
}

// StaffRooms is the admin plus analyst broadcast target.
func StaffRooms() []Room {
	return []Room{RoleRoom(domain.RoleAdmin), RoleRoom(domain.RoleAnalyst)}
}

// ParseRoom validates a room identifier against the user:<id> / role:<role> scheme.
func ParseRoom(s string) (Room, bool) {
	switch {
	case strings.HasPrefix(s, userRoomPrefix) && len(s) > len(userRoomPrefix):
		return Room(s), true
	case strings.HasPrefix(s, roleRoomPrefix):
		return Room(s), domain.Role(strings.TrimPrefix(s, roleRoomPrefix)).Valid()
	}
	return "", false
}
