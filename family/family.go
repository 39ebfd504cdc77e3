package family

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	es "github.com/familyorganizer/eventsourcing"
)

// Rule violations. All of them match es.ErrBusinessRuleViolation.
var (
	ErrAlreadyCreated = ruleViolation("family already created")
	ErrNotCreated     = ruleViolation("family not created")
	ErrNameRequired   = ruleViolation("family name is required")
	ErrOwnerRequired  = ruleViolation("family owner is required")
	ErrUserRequired   = ruleViolation("user id is required")
	ErrInvalidRole    = ruleViolation("invalid role")
	ErrAlreadyMember  = ruleViolation("user is already a member")
	ErrNotMember      = ruleViolation("user is not a member")
	ErrOwnerProtected = ruleViolation("the owner cannot be removed or demoted")
)

func ruleViolation(msg string) error {
	return fmt.Errorf("%w: %s", es.ErrBusinessRuleViolation, msg)
}

// Member is a user belonging to a family.
type Member struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Family groups users that share an organizer. The owner is always a member
// and an admin.
type Family struct {
	es.AggregateRoot

	name    string
	ownerID string
	members []Member
	admins  map[string]struct{}
}

var handlers = es.NewHandlers(AggregateType,
	es.On(func(f *Family, e FamilyCreated, _ es.DomainEvent) {
		f.name = e.Name
		f.ownerID = e.OwnerID
	}),
	es.On(func(f *Family, e FamilyMemberAdded, _ es.DomainEvent) {
		f.members = append(f.members, Member{UserID: e.MemberUserID, Role: e.Role})
	}),
	es.On(func(f *Family, e FamilyMemberRemoved, _ es.DomainEvent) {
		f.members = slices.DeleteFunc(f.members, func(m Member) bool { return m.UserID == e.MemberUserID })
		delete(f.admins, e.MemberUserID)
	}),
	es.On(func(f *Family, e FamilyAdminAssigned, _ es.DomainEvent) { f.admins[e.AdminUserID] = struct{}{} }),
	es.On(func(f *Family, e FamilyAdminRevoked, _ es.DomainEvent) { delete(f.admins, e.AdminUserID) }),
	es.On(func(f *Family, e FamilyRenamed, _ es.DomainEvent) { f.name = e.Name }),
)

// New constructs an empty Family. It is the factory used by repositories.
func New(id string) *Family {
	f := &Family{admins: make(map[string]struct{})}
	f.AggregateRoot = es.NewAggregateRoot(id, AggregateType, handlers.Bind(f), f.reset)
	return f
}

func (f *Family) reset() {
	f.name = ""
	f.ownerID = ""
	f.members = nil
	f.admins = make(map[string]struct{})
}

func (f *Family) Name() string    { return f.name }
func (f *Family) OwnerID() string { return f.ownerID }

// Members returns the members in the order they joined.
func (f *Family) Members() []Member { return slices.Clone(f.members) }

func (f *Family) member(userID string) (Member, bool) {
	i := slices.IndexFunc(f.members, func(m Member) bool { return m.UserID == userID })
	if i < 0 {
		return Member{}, false
	}
	return f.members[i], true
}

func (f *Family) IsMember(userID string) bool {
	_, ok := f.member(userID)
	return ok
}

func (f *Family) IsAdmin(userID string) bool {
	_, ok := f.admins[userID]
	return ok
}

// Admins returns the admin user ids, sorted.
func (f *Family) Admins() []string {
	out := make([]string, 0, len(f.admins))
	for id := range f.admins {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Create starts the family: the owner joins as FamilyAdmin and is made admin.
func (f *Family) Create(ctx context.Context, name, ownerID string) error {
	if f.Version() > 0 {
		return ErrAlreadyCreated
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ErrNameRequired
	case ownerID == "":
		return ErrOwnerRequired
	}

	if err := f.Raise(ctx, FamilyCreated{Name: name, OwnerID: ownerID}); err != nil {
		return err
	}
	if err := f.Raise(ctx, FamilyMemberAdded{MemberUserID: ownerID, Role: RoleFamilyAdmin}); err != nil {
		return err
	}
	return f.Raise(ctx, FamilyAdminAssigned{AdminUserID: ownerID})
}

// Rename changes the family name. Renaming to the current name raises nothing.
func (f *Family) Rename(ctx context.Context, name string) error {
	if f.Version() == 0 {
		return ErrNotCreated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if name == f.name {
		return nil
	}
	return f.Raise(ctx, FamilyRenamed{Name: name})
}

func (f *Family) AddMember(ctx context.Context, userID string, role Role) error {
	if f.Version() == 0 {
		return ErrNotCreated
	}
	if userID == "" {
		return ErrUserRequired
	}
	if !role.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidRole, role)
	}
	if f.IsMember(userID) {
		return fmt.Errorf("%w: %s", ErrAlreadyMember, userID)
	}
	return f.Raise(ctx, FamilyMemberAdded{MemberUserID: userID, Role: role})
}

// RemoveMember removes a member together with any admin rights.
func (f *Family) RemoveMember(ctx context.Context, userID string) error {
	if f.Version() == 0 {
		return ErrNotCreated
	}
	if userID == f.ownerID {
		return ErrOwnerProtected
	}
	if !f.IsMember(userID) {
		return fmt.Errorf("%w: %s", ErrNotMember, userID)
	}
	return f.Raise(ctx, FamilyMemberRemoved{MemberUserID: userID})
}

// AssignAdmin makes a member admin. Assigning an admin again raises nothing.
func (f *Family) AssignAdmin(ctx context.Context, userID string) error {
	if f.Version() == 0 {
		return ErrNotCreated
	}
	if !f.IsMember(userID) {
		return fmt.Errorf("%w: %s", ErrNotMember, userID)
	}
	if f.IsAdmin(userID) {
		return nil
	}
	return f.Raise(ctx, FamilyAdminAssigned{AdminUserID: userID})
}

// RevokeAdmin takes admin rights from a member. The owner keeps them.
func (f *Family) RevokeAdmin(ctx context.Context, userID string) error {
	if f.Version() == 0 {
		return ErrNotCreated
	}
	if userID == f.ownerID {
		return ErrOwnerProtected
	}
	if !f.IsAdmin(userID) {
		return nil
	}
	return f.Raise(ctx, FamilyAdminRevoked{AdminUserID: userID})
}

type state struct {
	Name    string   `json:"name"`
	OwnerID string   `json:"ownerId"`
	Members []Member `json:"members"`
	Admins  []string `json:"admins"`
}

func (f *Family) Snapshot() ([]byte, error) {
	return json.Marshal(state{Name: f.name, OwnerID: f.ownerID, Members: f.members, Admins: f.Admins()})
}

func (f *Family) RestoreSnapshot(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f.reset()
	f.name = s.Name
	f.ownerID = s.OwnerID
	f.members = s.Members
	for _, id := range s.Admins {
		f.admins[id] = struct{}{}
	}
	return nil
}
