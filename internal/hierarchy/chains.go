package hierarchy

import "github.com/noah-isme/campus-erp-api/internal/models"

// Request type categories.
const (
	CategoryAdministrative = "administrative"
	CategoryAcademic       = "academic"
	CategoryMaintenance    = "maintenance"
	CategoryInventory      = "inventory"
	CategoryHostel         = "hostel"
	CategoryGeneral        = "general"
)

// Chain is the ordered approval route for one request type, from the first
// handling role to the final authority. A role's index in Sequence is its
// rank; the element after it is its next approver.
type Chain struct {
	RequestType      string
	Category         string
	Sequence         []models.Role
	AutoForward      bool
	RequiresApproval bool
	Description      string
}

// MaxLevels is the chain length.
func (c Chain) MaxLevels() int {
	return len(c.Sequence)
}

// chainTable is the single authoritative source for approval routing. Every
// forward and escalation consults it; there is no secondary per-type table.
var chainTable = map[string]Chain{
	"certificate": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleClerk, models.RoleRegistrar, models.RolePrincipal},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Bonafide, conduct and character certificates",
	},
	"transcript": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleClerk, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Mark sheets and transcripts",
	},
	"migration": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleClerk, models.RoleRegistrar, models.RolePrincipal},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Migration and transfer certificates",
	},
	"id_card": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleClerk, models.RoleAdmin},
		AutoForward:      true,
		RequiresApproval: false,
		Description:      "Identity card issue and replacement",
	},
	"leave": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleClerk, models.RoleHOD, models.RoleRegistrar},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Staff leave applications",
	},
	"salary_advance": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleAccountant, models.RoleRegistrar, models.RolePrincipal},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Salary advance requests",
	},
	"reimbursement": {
		Category:         CategoryAdministrative,
		Sequence:         []models.Role{models.RoleAccountant, models.RoleRegistrar},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Expense reimbursements",
	},
	"academic": {
		Category:         CategoryAcademic,
		Sequence:         []models.Role{models.RoleTeacher, models.RoleHOD, models.RolePrincipal},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "General academic matters",
	},
	"syllabus_change": {
		Category:         CategoryAcademic,
		Sequence:         []models.Role{models.RoleTeacher, models.RoleHOD, models.RolePrincipal},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Curriculum and syllabus revisions",
	},
	"exam_revaluation": {
		Category:         CategoryAcademic,
		Sequence:         []models.Role{models.RoleTeacher, models.RoleHOD, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Answer sheet revaluation",
	},
	"lab_equipment": {
		Category:         CategoryAcademic,
		Sequence:         []models.Role{models.RoleLabAssistant, models.RoleHOD, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Laboratory equipment purchase or repair",
	},
	"maintenance": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RoleTechnician, models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "General maintenance work orders",
	},
	"plumbing": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RolePlumber, models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Plumbing and water supply faults",
	},
	"electrical": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RoleElectrician, models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Electrical faults and fittings",
	},
	"carpentry": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RoleCarpenter, models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Furniture and fixture repairs",
	},
	"ac_repair": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RoleTechnician, models.RoleMaintenanceHead},
		AutoForward:      true,
		RequiresApproval: false,
		Description:      "Air conditioning service calls",
	},
	"cleaning": {
		Category:         CategoryMaintenance,
		Sequence:         []models.Role{models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      false,
		RequiresApproval: false,
		Description:      "Housekeeping and deep cleaning",
	},
	"inventory": {
		Category:         CategoryInventory,
		Sequence:         []models.Role{models.RoleStoreKeeper, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Stock issue and replenishment",
	},
	"stationery": {
		Category:         CategoryInventory,
		Sequence:         []models.Role{models.RoleClerk, models.RoleStoreKeeper},
		AutoForward:      false,
		RequiresApproval: false,
		Description:      "Stationery supplies",
	},
	"library_stock": {
		Category:         CategoryInventory,
		Sequence:         []models.Role{models.RoleLibrarian, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Book and journal acquisitions",
	},
	"lab_supplies": {
		Category:         CategoryInventory,
		Sequence:         []models.Role{models.RoleLabAssistant, models.RoleStoreKeeper, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Consumables for laboratories",
	},
	"furniture": {
		Category:         CategoryInventory,
		Sequence:         []models.Role{models.RoleStoreKeeper, models.RoleEstateManager, models.RoleRegistrar},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Furniture procurement",
	},
	"hostel_maintenance": {
		Category:         CategoryHostel,
		Sequence:         []models.Role{models.RoleHostelRector, models.RoleMaintenanceHead, models.RoleEstateManager},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Hostel building repairs",
	},
	"hostel_admission": {
		Category:         CategoryHostel,
		Sequence:         []models.Role{models.RoleHostelRector, models.RoleRegistrar},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Hostel seat allotment",
	},
	"mess": {
		Category:         CategoryHostel,
		Sequence:         []models.Role{models.RoleHostelRector, models.RoleRegistrar},
		AutoForward:      false,
		RequiresApproval: false,
		Description:      "Mess menu and billing issues",
	},
	"complaint": {
		Category:         CategoryGeneral,
		Sequence:         []models.Role{models.RoleHOD, models.RoleRegistrar, models.RolePrincipal},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Grievances and complaints",
	},
	"security": {
		Category:         CategoryGeneral,
		Sequence:         []models.Role{models.RoleSecurityOfficer, models.RoleAdmin, models.RoleRegistrar},
		AutoForward:      true,
		RequiresApproval: true,
		Description:      "Security incidents and passes",
	},
	"general": {
		Category:         CategoryGeneral,
		Sequence:         []models.Role{models.RoleRegistrar, models.RolePrincipal},
		AutoForward:      false,
		RequiresApproval: true,
		Description:      "Anything without a dedicated route",
	},
}

// ChainFor returns the approval chain for a request type.
func ChainFor(requestType string) (Chain, bool) {
	chain, ok := chainTable[requestType]
	if !ok {
		return Chain{}, false
	}
	chain.RequestType = requestType
	return chain, true
}

// KnownType reports whether the request type has a configured chain.
func KnownType(requestType string) bool {
	_, ok := chainTable[requestType]
	return ok
}

// NextApprover returns the role after current in the type's chain. The
// second result is false when the type is unknown, current is not in the
// chain, or current is the chain's last step.
func NextApprover(current models.Role, requestType string) (models.Role, bool) {
	chain, ok := chainTable[requestType]
	if !ok {
		return "", false
	}
	for i, role := range chain.Sequence {
		if role == current {
			if i+1 < len(chain.Sequence) {
				return chain.Sequence[i+1], true
			}
			return "", false
		}
	}
	return "", false
}

// CanApproveRequestType reports whether the role sits anywhere in the chain.
func CanApproveRequestType(role models.Role, requestType string) bool {
	chain, ok := chainTable[requestType]
	if !ok {
		return false
	}
	for _, r := range chain.Sequence {
		if r == role {
			return true
		}
	}
	return false
}

// RequestTypesForRole lists every type whose chain contains the role.
func RequestTypesForRole(role models.Role) []string {
	var types []string
	for requestType, chain := range chainTable {
		for _, r := range chain.Sequence {
			if r == role {
				types = append(types, requestType)
				break
			}
		}
	}
	return types
}

// CategoriesForRole lists the distinct categories of the role's types.
func CategoriesForRole(role models.Role) []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, requestType := range RequestTypesForRole(role) {
		category := chainTable[requestType].Category
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	}
	return categories
}

// RequestTypes lists every configured request type.
func RequestTypes() []string {
	types := make([]string, 0, len(chainTable))
	for requestType := range chainTable {
		types = append(types, requestType)
	}
	return types
}
