package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleFleetAdmin UserRole = "FLEET_ADMIN"
	UserRoleDispatcher UserRole = "DISPATCHER"
	UserRoleDriver     UserRole = "DRIVER"
)

type Principal struct {
	UserID   uuid.UUID
	OrgID    uuid.UUID
	Role     UserRole
	DriverID *uuid.UUID
}

func (p Principal) IsFleetAdmin() bool {
	return p.Role == UserRoleFleetAdmin
}

func (p Principal) IsDispatcher() bool {
	return p.Role == UserRoleDispatcher
}

func (p Principal) IsDriver() bool {
	return p.Role == UserRoleDriver
}

// CanOperate reports whether the principal may create trips, activate them
// or acknowledge alerts. Drivers only read their own state.
func (p Principal) CanOperate() bool {
	return p.IsFleetAdmin() || p.IsDispatcher()
}
