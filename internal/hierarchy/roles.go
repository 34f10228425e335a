// Package hierarchy holds the static routing tables for staff requests: the
// role directory, the per-request-type approval chains, and the sender flow
// pairs. All lookups are pure functions over compile-time data; unknown
// input yields a zero value, never a panic.
package hierarchy

import "github.com/noah-isme/campus-erp-api/internal/models"

var roleDirectory = map[models.Role]models.RoleConfig{
	models.RolePrincipal: {
		Role:              models.RolePrincipal,
		Level:             4,
		CanSendRequestsTo: []models.RoleRef{models.Ref(models.RoleRegistrar)},
		CanReceiveFrom:    []models.RoleRef{models.GroupRef(models.GroupAll)},
		CanApprove:        []models.RoleRef{models.GroupRef(models.GroupAll)},
		Description:       "Final authority for institute-wide requests",
	},
	models.RoleRegistrar: {
		Role:              models.RoleRegistrar,
		Level:             3,
		CanSendRequestsTo: []models.RoleRef{models.Ref(models.RolePrincipal)},
		CanReceiveFrom:    []models.RoleRef{models.GroupRef(models.GroupAllStaff)},
		CanApprove:        []models.RoleRef{models.GroupRef(models.GroupAllStaff)},
		Description:       "Administrative head handling certificates and records",
	},
	models.RoleAdmin: {
		Role:              models.RoleAdmin,
		Level:             3,
		CanSendRequestsTo: []models.RoleRef{models.Ref(models.RolePrincipal), models.Ref(models.RoleRegistrar)},
		CanReceiveFrom:    []models.RoleRef{models.GroupRef(models.GroupAll)},
		CanApprove:        []models.RoleRef{models.GroupRef(models.GroupAllNonTeaching)},
		Description:       "System administrator with audit access",
	},
	models.RoleHOD: {
		Role:  models.RoleHOD,
		Level: 3,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RolePrincipal),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleLabAssistant),
			models.Ref(models.RoleClerk),
			models.Ref(models.RoleStudent),
		},
		CanApprove: []models.RoleRef{
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleLabAssistant),
			models.Ref(models.RoleStudent),
		},
		Description: "Department head approving academic requests",
	},
	models.RoleTeacher: {
		Role:  models.RoleTeacher,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleHOD),
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleLibrarian),
			models.Ref(models.RoleStoreKeeper),
			models.Ref(models.RoleMaintenanceHead),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleHOD),
			models.Ref(models.RoleStudent),
		},
		CanApprove:  []models.RoleRef{models.Ref(models.RoleStudent)},
		Description: "Teaching staff",
	},
	models.RoleClerk: {
		Role:  models.RoleClerk,
		Level: 1,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleAdmin),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleHOD),
			models.Ref(models.RoleRegistrar),
		},
		Description: "Office clerk preparing certificates and records",
	},
	models.RoleAccountant: {
		Role:  models.RoleAccountant,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RolePrincipal),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleStoreKeeper),
			models.Ref(models.RoleClerk),
		},
		Description: "Accounts office",
	},
	models.RoleLibrarian: {
		Role:  models.RoleLibrarian,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleStoreKeeper),
			models.Ref(models.RoleMaintenanceHead),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleStudent),
		},
		Description: "Library desk",
	},
	models.RoleStoreKeeper: {
		Role:  models.RoleStoreKeeper,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleAccountant),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleLibrarian),
			models.Ref(models.RoleLabAssistant),
			models.Ref(models.RoleMaintenanceHead),
			models.Ref(models.RoleTechnician),
			models.Ref(models.RolePlumber),
			models.Ref(models.RoleElectrician),
			models.Ref(models.RoleCarpenter),
		},
		Description: "Central store issuing inventory",
	},
	models.RoleHostelRector: {
		Role:  models.RoleHostelRector,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleEstateManager),
			models.Ref(models.RoleMaintenanceHead),
		},
		CanReceiveFrom: []models.RoleRef{models.Ref(models.RoleStudent)},
		CanApprove:     []models.RoleRef{models.Ref(models.RoleStudent)},
		Description:    "Hostel warden",
	},
	models.RoleEstateManager: {
		Role:  models.RoleEstateManager,
		Level: 3,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RolePrincipal),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleMaintenanceHead),
			models.Ref(models.RoleHostelRector),
		},
		CanApprove: []models.RoleRef{
			models.Ref(models.RoleMaintenanceHead),
			models.Ref(models.RoleHostelRector),
			models.Ref(models.RoleTechnician),
			models.Ref(models.RolePlumber),
			models.Ref(models.RoleElectrician),
			models.Ref(models.RoleCarpenter),
		},
		Description: "Campus estate and infrastructure head",
	},
	models.RoleMaintenanceHead: {
		Role:  models.RoleMaintenanceHead,
		Level: 2,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleEstateManager),
			models.Ref(models.RoleRegistrar),
			models.Ref(models.RoleStoreKeeper),
		},
		CanReceiveFrom: []models.RoleRef{
			models.Ref(models.RoleTechnician),
			models.Ref(models.RolePlumber),
			models.Ref(models.RoleElectrician),
			models.Ref(models.RoleCarpenter),
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleLibrarian),
			models.Ref(models.RoleHostelRector),
			models.Ref(models.RoleLabAssistant),
		},
		CanApprove: []models.RoleRef{
			models.Ref(models.RoleTechnician),
			models.Ref(models.RolePlumber),
			models.Ref(models.RoleElectrician),
			models.Ref(models.RoleCarpenter),
		},
		Description: "Supervisor of the maintenance crews",
	},
	models.RoleLabAssistant: {
		Role:  models.RoleLabAssistant,
		Level: 1,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleHOD),
			models.Ref(models.RoleStoreKeeper),
			models.Ref(models.RoleMaintenanceHead),
		},
		CanReceiveFrom: []models.RoleRef{models.Ref(models.RoleTeacher)},
		Description:    "Laboratory support staff",
	},
	models.RoleSecurityOfficer: {
		Role:  models.RoleSecurityOfficer,
		Level: 1,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleAdmin),
			models.Ref(models.RoleRegistrar),
		},
		CanReceiveFrom: []models.RoleRef{models.Ref(models.RoleAdmin)},
		Description:    "Campus security",
	},
	models.RoleTechnician: {
		Role:              models.RoleTechnician,
		Level:             1,
		CanSendRequestsTo: maintenanceCrewTargets(),
		CanReceiveFrom:    []models.RoleRef{models.Ref(models.RoleMaintenanceHead)},
		Description:       "General repairs technician",
	},
	models.RolePlumber: {
		Role:              models.RolePlumber,
		Level:             1,
		CanSendRequestsTo: maintenanceCrewTargets(),
		CanReceiveFrom:    []models.RoleRef{models.Ref(models.RoleMaintenanceHead)},
		Description:       "Plumbing crew",
	},
	models.RoleElectrician: {
		Role:              models.RoleElectrician,
		Level:             1,
		CanSendRequestsTo: maintenanceCrewTargets(),
		CanReceiveFrom:    []models.RoleRef{models.Ref(models.RoleMaintenanceHead)},
		Description:       "Electrical crew",
	},
	models.RoleCarpenter: {
		Role:              models.RoleCarpenter,
		Level:             1,
		CanSendRequestsTo: maintenanceCrewTargets(),
		CanReceiveFrom:    []models.RoleRef{models.Ref(models.RoleMaintenanceHead)},
		Description:       "Carpentry crew",
	},
	models.RoleStudent: {
		Role:  models.RoleStudent,
		Level: 1,
		CanSendRequestsTo: []models.RoleRef{
			models.Ref(models.RoleTeacher),
			models.Ref(models.RoleHOD),
			models.Ref(models.RoleHostelRector),
			models.Ref(models.RoleLibrarian),
		},
		Description: "Enrolled student",
	},
}

func maintenanceCrewTargets() []models.RoleRef {
	return []models.RoleRef{
		models.Ref(models.RoleMaintenanceHead),
		models.Ref(models.RoleStoreKeeper),
	}
}

// teachingRoles are excluded from the all_non_teaching wildcard. Students
// are neither teaching nor non-teaching staff.
var teachingRoles = map[models.Role]struct{}{
	models.RoleTeacher: {},
	models.RoleHOD:     {},
}

// Roles returns every configured role in no particular order.
func Roles() []models.Role {
	roles := make([]models.Role, 0, len(roleDirectory))
	for role := range roleDirectory {
		roles = append(roles, role)
	}
	return roles
}

// RoleLevel returns the configured display level, or 0 for unknown roles.
func RoleLevel(role models.Role) int {
	return roleDirectory[role].Level
}

// RoleDescription returns the configured description for a role.
func RoleDescription(role models.Role) string {
	return roleDirectory[role].Description
}

// CanSendRequestTo reports whether from may address a request to to.
func CanSendRequestTo(from, to models.Role) bool {
	cfg, ok := roleDirectory[from]
	if !ok {
		return false
	}
	return matchesAny(cfg.CanSendRequestsTo, to)
}

// CanReceiveFrom reports whether recipient may see requests sent by sender.
func CanReceiveFrom(recipient, sender models.Role) bool {
	cfg, ok := roleDirectory[recipient]
	if !ok {
		return false
	}
	return matchesAny(cfg.CanReceiveFrom, sender)
}

// CanApprove reports whether approver may decide requests originated by sender.
func CanApprove(approver, sender models.Role) bool {
	cfg, ok := roleDirectory[approver]
	if !ok {
		return false
	}
	return matchesAny(cfg.CanApprove, sender)
}

// HasAuditVisibility reports whether the role may read the full request log.
func HasAuditVisibility(role models.Role) bool {
	switch role {
	case models.RolePrincipal, models.RoleRegistrar, models.RoleAdmin:
		return true
	}
	return false
}

// ExpandRoleRefs resolves a permission set to the concrete roles it covers.
func ExpandRoleRefs(refs []models.RoleRef) []models.Role {
	seen := make(map[models.Role]struct{})
	var out []models.Role
	add := func(role models.Role) {
		if _, dup := seen[role]; dup {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	for _, ref := range refs {
		if !ref.IsGroup() {
			if _, known := roleDirectory[ref.Role]; known {
				add(ref.Role)
			}
			continue
		}
		for role := range roleDirectory {
			if inGroup(role, ref.Group) {
				add(role)
			}
		}
	}
	return out
}

// SendTargets lists the concrete roles a sender may address.
func SendTargets(from models.Role) []models.Role {
	cfg, ok := roleDirectory[from]
	if !ok {
		return nil
	}
	return ExpandRoleRefs(cfg.CanSendRequestsTo)
}

func matchesAny(refs []models.RoleRef, role models.Role) bool {
	if _, known := roleDirectory[role]; !known {
		return false
	}
	for _, ref := range refs {
		if ref.IsGroup() {
			if inGroup(role, ref.Group) {
				return true
			}
			continue
		}
		if ref.Role == role {
			return true
		}
	}
	return false
}

func inGroup(role models.Role, group models.RoleGroup) bool {
	switch group {
	case models.GroupAll:
		return true
	case models.GroupAllStaff:
		return role != models.RoleStudent
	case models.GroupAllNonTeaching:
		if role == models.RoleStudent {
			return false
		}
		_, teaching := teachingRoles[role]
		return !teaching
	}
	return false
}
