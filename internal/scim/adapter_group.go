package scim

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/scimgate/scimgate/internal/store"
)

// GroupAdapter wraps one group record. Membership writes go through the
// store's transactional member operations so a bad member id never leaves a
// partial change behind.
type GroupAdapter struct {
	store store.Store
	base  string
	group *store.Group
	isNew bool

	// staged membership replacement; nil means the members key was absent
	// and the set stays as is.
	members *[]string
}

// NewGroupAdapter wraps an existing group record.
func NewGroupAdapter(s store.Store, base string, g *store.Group) *GroupAdapter {
	return &GroupAdapter{store: s, base: base, group: g}
}

// NewGroupRecord wraps a fresh record for creation.
func NewGroupRecord(s store.Store, base string) *GroupAdapter {
	return &GroupAdapter{store: s, base: base, group: &store.Group{}, isNew: true}
}

// ID returns the record's primary key.
func (a *GroupAdapter) ID() string {
	return a.group.ID
}

// Location returns the absolute URL of the resource.
func (a *GroupAdapter) Location() string {
	return fmt.Sprintf("%s/Groups/%s", a.base, a.group.ID)
}

// Resource renders the SCIM representation.
func (a *GroupAdapter) Resource() *GroupResource {
	g := a.group

	members := make([]MemberRef, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, MemberRef{Value: m.UserID, Display: m.UserName})
	}

	return &GroupResource{
		Schemas:     []string{SchemaGroup, SchemaGroupExtension},
		ID:          g.ID,
		DisplayName: g.Name,
		Members:     &members,
		Extension:   &GroupExtension{Description: "Provisioned group"},
		Meta: &Meta{
			ResourceType: "Group",
			Location:     a.Location(),
		},
	}
}

// Apply consumes an inbound representation. A present members key, even as an
// empty list, stages a full membership replacement for Save; an absent key
// leaves membership alone.
func (a *GroupAdapter) Apply(res *GroupResource) error {
	if a.isNew && a.group.ID == "" {
		a.group.ID = uuid.New().String()
	}

	a.group.Name = res.DisplayName

	if res.Members != nil {
		ids := make([]string, 0, len(*res.Members))
		for _, m := range *res.Members {
			ids = append(ids, m.Value)
		}
		a.members = &ids
	}

	return nil
}

// Save persists the record and any staged membership replacement in one
// transaction. A member id that does not resolve fails the whole call and
// nothing is written.
func (a *GroupAdapter) Save(ctx context.Context) error {
	var members []string
	if a.members != nil {
		members = *a.members
	}

	var err error
	if a.isNew {
		if a.members == nil {
			members = []string{}
		}
		err = a.store.CreateGroup(ctx, a.group, members)
	} else {
		err = a.store.UpdateGroup(ctx, a.group, members)
	}
	if err != nil {
		return storeError(err)
	}

	a.isNew = false
	a.members = nil
	return nil
}

// Delete removes the record. An already-deleted record is a no-op.
func (a *GroupAdapter) Delete(ctx context.Context) error {
	if err := a.store.DeleteGroup(ctx, a.group.ID); err != nil {
		return storeError(err)
	}
	return nil
}

// ApplyPatch applies the operations in request order, stopping at the first
// failure. Membership adds and removes validate every referenced user id
// inside the store transaction, so a bad id leaves the set unchanged.
func (a *GroupAdapter) ApplyPatch(ctx context.Context, ops []PatchOperation) error {
	for _, op := range ops {
		var err error
		switch op.Code() {
		case OpAdd:
			err = a.patchMembers(ctx, op, a.store.AddGroupMembers)
		case OpRemove:
			err = a.patchMembers(ctx, op, a.store.RemoveGroupMembers)
		case OpReplace:
			err = a.patchReplace(ctx, op)
		default:
			err = NotImplemented(fmt.Sprintf("PATCH op %q not supported for Groups", op.Op))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *GroupAdapter) patchMembers(ctx context.Context, op PatchOperation, apply func(context.Context, string, []string) error) error {
	if op.Path != "members" {
		return NotImplemented(fmt.Sprintf("PATCH %s path %q not supported for Groups", op.Code(), op.Path))
	}

	ids, err := decodeMemberIDs(op.Value)
	if err != nil {
		return err
	}

	if err := apply(ctx, a.group.ID, ids); err != nil {
		return storeError(err)
	}
	return nil
}

func (a *GroupAdapter) patchReplace(ctx context.Context, op PatchOperation) error {
	switch op.Path {
	case "members":
		ids, err := decodeMemberIDs(op.Value)
		if err != nil {
			return err
		}
		if err := a.store.UpdateGroup(ctx, a.group, ids); err != nil {
			return storeError(err)
		}
		return nil

	case "displayName":
		s, ok := op.Value.(string)
		if !ok {
			return BadRequest("displayName must be a string")
		}
		a.group.Name = s
		if err := a.store.UpdateGroup(ctx, a.group, nil); err != nil {
			return storeError(err)
		}
		return nil

	case "":
		attrs, ok := op.Value.(map[string]interface{})
		if !ok {
			return BadRequest("PATCH replace without path requires an attribute object")
		}
		if v, ok := attrs["displayName"].(string); ok {
			a.group.Name = v
			if err := a.store.UpdateGroup(ctx, a.group, nil); err != nil {
				return storeError(err)
			}
			return nil
		}
		return NotImplemented("PATCH replace on Groups supports displayName and members only")

	default:
		return NotImplemented(fmt.Sprintf("PATCH replace path %q not supported for Groups", op.Path))
	}
}

// decodeMemberIDs accepts the member list forms identity providers send: a
// list of {value} objects, a single such object, or a bare string id.
func decodeMemberIDs(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, err := decodeMemberID(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		id, err := decodeMemberID(value)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
}

func decodeMemberID(item interface{}) (string, error) {
	switch v := item.(type) {
	case string:
		return v, nil
	case map[string]interface{}:
		if id, ok := v["value"].(string); ok {
			return id, nil
		}
		return "", BadRequest("member entries must carry a string value")
	default:
		return "", BadRequest("member entries must be objects or strings")
	}
}

// GroupResourceType is the static metadata document for the Group resource.
func GroupResourceType(base string) *ResourceType {
	return &ResourceType{
		Schemas:     []string{SchemaResourceType},
		ID:          "Group",
		Name:        "Group",
		Endpoint:    "/Groups",
		Description: "Group",
		Schema:      SchemaGroup,
		Meta: &Meta{
			ResourceType: "ResourceType",
			Location:     base + "/ResourceTypes/Group",
		},
	}
}
