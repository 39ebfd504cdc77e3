package family

import (
	"context"
)

type CreateFamily struct {
	FamilyID string
	Name     string
	OwnerID  string
}

func (c CreateFamily) AggregateID() string { return c.FamilyID }

type RenameFamily struct {
	FamilyID string
	Name     string
}

func (c RenameFamily) AggregateID() string { return c.FamilyID }

type AddMember struct {
	FamilyID string
	UserID   string
	Role     Role
}

func (c AddMember) AggregateID() string { return c.FamilyID }

type RemoveMember struct {
	FamilyID string
	UserID   string
}

func (c RemoveMember) AggregateID() string { return c.FamilyID }

type AssignAdmin struct {
	FamilyID string
	UserID   string
}

func (c AssignAdmin) AggregateID() string { return c.FamilyID }

type RevokeAdmin struct {
	FamilyID string
	UserID   string
}

func (c RevokeAdmin) AggregateID() string { return c.FamilyID }

func decideCreate(ctx context.Context, f *Family, c CreateFamily) error {
	return f.Create(ctx, c.Name, c.OwnerID)
}

func decideRename(ctx context.Context, f *Family, c RenameFamily) error {
	return f.Rename(ctx, c.Name)
}

func decideAddMember(ctx context.Context, f *Family, c AddMember) error {
	return f.AddMember(ctx, c.UserID, c.Role)
}

func decideRemoveMember(ctx context.Context, f *Family, c RemoveMember) error {
	return f.RemoveMember(ctx, c.UserID)
}

func decideAssignAdmin(ctx context.Context, f *Family, c AssignAdmin) error {
	return f.AssignAdmin(ctx, c.UserID)
}

func decideRevokeAdmin(ctx context.Context, f *Family, c RevokeAdmin) error {
	return f.RevokeAdmin(ctx, c.UserID)
}
