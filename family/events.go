package family

import (
	es "github.com/familyorganizer/eventsourcing"
)

// AggregateType is stored with every family event.
const AggregateType = "Family"

// Role is the role of a member within a family.
type Role string

const (
	RoleFamilyAdmin  Role = "FamilyAdmin"
	RoleFamilyMember Role = "FamilyMember"
	RoleChild        Role = "Child"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFamilyAdmin, RoleFamilyMember, RoleChild:
		return true
	}
	return false
}

// FamilyCreated starts a family.
type FamilyCreated struct {
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

func (FamilyCreated) EventType() string { return "FamilyCreated" }

type FamilyMemberAdded struct {
	MemberUserID string `json:"memberUserId"`
	Role         Role   `json:"role"`
}

func (FamilyMemberAdded) EventType() string { return "FamilyMemberAdded" }

type FamilyMemberRemoved struct {
	MemberUserID string `json:"memberUserId"`
}

func (FamilyMemberRemoved) EventType() string { return "FamilyMemberRemoved" }

type FamilyAdminAssigned struct {
	AdminUserID string `json:"adminUserId"`
}

func (FamilyAdminAssigned) EventType() string { return "FamilyAdminAssigned" }

type FamilyAdminRevoked struct {
	AdminUserID string `json:"adminUserId"`
}

func (FamilyAdminRevoked) EventType() string { return "FamilyAdminRevoked" }

type FamilyRenamed struct {
	Name string `json:"name"`
}

func (FamilyRenamed) EventType() string { return "FamilyRenamed" }

// Register makes the family events known to r.
func Register(r *es.Registry) {
	es.RegisterEvent[FamilyCreated](r)
	es.RegisterEvent[FamilyMemberAdded](r)
	es.RegisterEvent[FamilyMemberRemoved](r)
	es.RegisterEvent[FamilyAdminAssigned](r)
	es.RegisterEvent[FamilyAdminRevoked](r)
	es.RegisterEvent[FamilyRenamed](r)
}
