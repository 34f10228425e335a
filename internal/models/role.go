package models

// Role identifies a staff or student position used for permissions and routing.
type Role string

const (
	RolePrincipal       Role = "principal"
	RoleRegistrar       Role = "registrar"
	RoleAdmin           Role = "admin"
	RoleHOD             Role = "hod"
	RoleTeacher         Role = "teacher"
	RoleClerk           Role = "clerk"
	RoleAccountant      Role = "accountant"
	RoleLibrarian       Role = "librarian"
	RoleStoreKeeper     Role = "store_keeper"
	RoleHostelRector    Role = "hostel_rector"
	RoleEstateManager   Role = "estate_manager"
	RoleMaintenanceHead Role = "maintenance_head"
	RoleLabAssistant    Role = "lab_assistant"
	RoleSecurityOfficer Role = "security_officer"
	RoleTechnician      Role = "technician"
	RolePlumber         Role = "plumber"
	RoleElectrician     Role = "electrician"
	RoleCarpenter       Role = "carpenter"
	RoleStudent         Role = "student"

	// RoleSystem authors machine-generated comments (forwards, escalations).
	// It is not part of the routing directory and cannot send or receive.
	RoleSystem Role = "system"
)

// RoleGroup is a wildcard standing in for a set of roles in a permission list.
type RoleGroup string

const (
	GroupAll            RoleGroup = "all"
	GroupAllStaff       RoleGroup = "all_staff"
	GroupAllNonTeaching RoleGroup = "all_non_teaching"
)

// RoleRef is a tagged reference in a permission set: either one concrete role
// or one group wildcard, never both. Keeping the two variants apart means a
// literal role that happens to be named like a wildcard cannot match as one.
type RoleRef struct {
	Role  Role
	Group RoleGroup
}

// Ref builds a concrete role reference.
func Ref(role Role) RoleRef {
	return RoleRef{Role: role}
}

// GroupRef builds a wildcard reference.
func GroupRef(group RoleGroup) RoleRef {
	return RoleRef{Group: group}
}

// IsGroup reports whether the reference is a wildcard.
func (r RoleRef) IsGroup() bool {
	return r.Group != ""
}

// RoleConfig describes one role's place in the routing hierarchy.
type RoleConfig struct {
	Role              Role
	Level             int
	CanSendRequestsTo []RoleRef
	CanReceiveFrom    []RoleRef
	CanApprove        []RoleRef
	Description       string
}
