package domain

import "time"

// UserRole enumerates the fixed set of account roles.
type UserRole string

const (
	RoleSuperAdmin   UserRole = "SUPER_ADMIN"
	RoleZoneOfficer  UserRole = "ZONE_OFFICER"
	RoleWardEngineer UserRole = "WARD_ENGINEER"
	RoleFieldWorker  UserRole = "FIELD_WORKER"
	RoleCitizen      UserRole = "CITIZEN"
)

// Roles lists every known role.
var Roles = []UserRole{RoleSuperAdmin, RoleZoneOfficer, RoleWardEngineer, RoleFieldWorker, RoleCitizen}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Department is the engineering department an issue or engineer belongs to.
type Department string

const (
	DepartmentRoads       Department = "ROADS"
	DepartmentWaterSupply Department = "WATER_SUPPLY"
	DepartmentSanitation  Department = "SANITATION"
	DepartmentDrainage    Department = "DRAINAGE"
	DepartmentElectrical  Department = "ELECTRICAL"
	DepartmentParks       Department = "PARKS"
	DepartmentGeneral     Department = "GENERAL"
)

// Departments lists every known department.
var Departments = []Department{
	DepartmentRoads,
	DepartmentWaterSupply,
	DepartmentSanitation,
	DepartmentDrainage,
	DepartmentElectrical,
	DepartmentParks,
	DepartmentGeneral,
}

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// User is an account bound to a role and optionally a ward, zone or department.
type User struct {
	ID           string
	FullName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Role         UserRole
	Department   *Department
	WardID       *string
	ZoneID       *string
	IsActive     bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFieldStaff reports whether the user can hold issue assignments.
func (u *User) IsFieldStaff() bool {
	return u.Role == RoleWardEngineer || u.Role == RoleFieldWorker
}
