package hierarchy

import "github.com/noah-isme/campus-erp-api/internal/models"

// Flow describes routing behaviour for one sender/recipient role pair.
// AutoForward means a freshly created request addressed to To is immediately
// passed on to the next role in its type's chain.
type Flow struct {
	From             models.Role
	To               models.Role
	AutoForward      bool
	RequiresApproval bool
}

var flowTable = []Flow{
	{From: models.RoleClerk, To: models.RoleRegistrar, AutoForward: true, RequiresApproval: true},
	{From: models.RoleTeacher, To: models.RoleHOD, AutoForward: true, RequiresApproval: true},
	{From: models.RoleLabAssistant, To: models.RoleHOD, AutoForward: true, RequiresApproval: true},
	{From: models.RoleTechnician, To: models.RoleMaintenanceHead, AutoForward: true, RequiresApproval: true},
	{From: models.RolePlumber, To: models.RoleMaintenanceHead, AutoForward: true, RequiresApproval: true},
	{From: models.RoleElectrician, To: models.RoleMaintenanceHead, AutoForward: true, RequiresApproval: true},
	{From: models.RoleCarpenter, To: models.RoleMaintenanceHead, AutoForward: true, RequiresApproval: true},
	{From: models.RoleHostelRector, To: models.RoleMaintenanceHead, AutoForward: true, RequiresApproval: true},
	{From: models.RoleMaintenanceHead, To: models.RoleEstateManager, AutoForward: true, RequiresApproval: true},
	{From: models.RoleLibrarian, To: models.RoleRegistrar, AutoForward: false, RequiresApproval: true},
	{From: models.RoleStoreKeeper, To: models.RoleRegistrar, AutoForward: false, RequiresApproval: true},
	{From: models.RoleAccountant, To: models.RoleRegistrar, AutoForward: false, RequiresApproval: true},
	{From: models.RoleHOD, To: models.RoleRegistrar, AutoForward: false, RequiresApproval: true},
	{From: models.RoleStudent, To: models.RoleTeacher, AutoForward: false, RequiresApproval: true},
	{From: models.RoleStudent, To: models.RoleHostelRector, AutoForward: false, RequiresApproval: true},
}

// FlowFor returns the flow record for a sender/recipient pair. Pairs without
// a record get no automatic routing.
func FlowFor(from, to models.Role) (Flow, bool) {
	for _, flow := range flowTable {
		if flow.From == from && flow.To == to {
			return flow, true
		}
	}
	return Flow{}, false
}
