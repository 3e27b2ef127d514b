package rbac

import "strings"

// Role is a user_role value as synced from HR.
type Role string

type Action string

// Kind is the closed set of scoping behaviours a role can have.
type Kind int

const (
	KindOther Kind = iota
	KindUnrestricted
	KindManager
	KindCaseOfficer
)

const (
	RoleSuperAdmin       Role = "super_admin"
	RoleAdmin            Role = "admin"
	RoleCXO              Role = "CXO"
	RoleFunctionLead     Role = "Function Lead"
	RoleProjectLead      Role = "Project Lead"
	RoleManager          Role = "manager"
	RoleProjectAssociate Role = "Project Associate"
	RoleCOFullTime       Role = "CO Full Time"
	RoleCHOCOPartTime    Role = "CHO,CO Part Time"
	RoleCOPartTime       Role = "CO Part Time"
	RoleAcademicSupport  Role = "Academic Support"
	RoleWingman          Role = "Wingman"
	RoleCO               Role = "co"
)

const (
	ActionRead        Action = "read"
	ActionWrite       Action = "write"
	ActionReallocate  Action = "reallocate"
	ActionAdmin       Action = "admin"
	ActionManageUsers Action = "manage_users"
)

const (
	adminLevel       = 50
	manageUsersLevel = 70
)

var levels = map[Role]int{
	RoleSuperAdmin:       100,
	RoleAdmin:            90,
	RoleCXO:              80,
	RoleFunctionLead:     70,
	RoleProjectLead:      60,
	RoleManager:          50,
	RoleProjectAssociate: 40,
	RoleCOFullTime:       30,
	RoleCHOCOPartTime:    25,
	RoleCOPartTime:       20,
	RoleAcademicSupport:  15,
	RoleWingman:          10,
	RoleCO:               5,
}

var kinds = map[Role]Kind{
	RoleSuperAdmin:       KindUnrestricted,
	RoleAdmin:            KindUnrestricted,
	RoleCXO:              KindUnrestricted,
	RoleFunctionLead:     KindUnrestricted,
	RoleProjectLead:      KindUnrestricted,
	RoleManager:          KindManager,
	RoleProjectAssociate: KindManager,
	RoleCO:               KindCaseOfficer,
	RoleCOFullTime:       KindCaseOfficer,
	RoleCOPartTime:       KindCaseOfficer,
	RoleCHOCOPartTime:    KindCaseOfficer,
}

// loginRoles may sign in to the CRM.
var loginRoles = map[Role]bool{
	RoleProjectAssociate: true,
	RoleProjectLead:      true,
	RoleFunctionLead:     true,
	RoleCOFullTime:       true,
	RoleCOPartTime:       true,
	RoleCXO:              true,
	RoleCHOCOPartTime:    true,
}

func Normalize(role string) Role {
	return Role(strings.TrimSpace(role))
}

func (r Role) Kind() Kind {
	return kinds[r]
}

// Level is the hierarchy rank; unknown roles rank 0.
func (r Role) Level() int {
	return levels[r]
}

func (r Role) CanLogin() bool {
	return loginRoles[r]
}

func (r Role) CanAccessAdmin() bool {
	return r.Level() >= adminLevel
}

func (r Role) CanManageUsers() bool {
	return r.Level() >= manageUsersLevel
}

func Can(role Role, action Action) bool {
	switch action {
	case ActionRead, ActionWrite:
		return role.Kind() != KindOther
	case ActionReallocate, ActionAdmin:
		return role.CanAccessAdmin()
	case ActionManageUsers:
		return role.CanManageUsers()
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindUnrestricted:
		return "unrestricted"
	case KindManager:
		return "manager"
	case KindCaseOfficer:
		return "case_officer"
	default:
		return "other"
	}
}
