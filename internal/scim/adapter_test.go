package scim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/scimgate/scimgate/internal/store"
)

const testBase = "http://scim.test/scim/v2"

func TestUserRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	adapter := NewUserRecord(mem, testBase)

	in := &UserResource{
		Schemas:  []string{SchemaUser},
		UserName: "alice",
		Name:     &Name{GivenName: "Alice", FamilyName: "Smith"},
		Emails:   []Email{{Value: "alice@ex.com", Primary: true}},
		Active:   boolPtr(true),
		Extension: &UserExtension{
			PhoneNumber: "+1 555 0100",
			Department:  "Engineering",
		},
	}
	require.NoError(t, adapter.Apply(in))

	out := adapter.Resource()
	assert.Equal(t, "alice", out.UserName)
	assert.Equal(t, "Alice", out.Name.GivenName)
	assert.Equal(t, "Smith", out.Name.FamilyName)
	assert.Equal(t, "Alice Smith", out.DisplayName)
	require.NotNil(t, out.Active)
	assert.True(t, *out.Active)
	require.Len(t, out.Emails, 1)
	assert.Equal(t, "alice@ex.com", out.Emails[0].Value)
	assert.True(t, out.Emails[0].Primary)
	assert.Equal(t, "Engineering", out.Extension.Department)
	assert.Equal(t, testBase+"/Users/"+adapter.ID(), out.Meta.Location)
	assert.Contains(t, out.Schemas, SchemaUser)
	assert.Contains(t, out.Schemas, SchemaUserExtension)
}

func TestUserDisplayNameFallsBackToUserName(t *testing.T) {
	mem := store.NewMemory()
	adapter := NewUserRecord(mem, testBase)

	require.NoError(t, adapter.Apply(&UserResource{UserName: "bob"}))

	out := adapter.Resource()
	assert.Equal(t, "bob", out.DisplayName)
	assert.Equal(t, "", out.Name.GivenName)
	assert.Equal(t, "", out.Name.FamilyName)
}

func TestUserPrimaryEmailPreference(t *testing.T) {
	tests := []struct {
		name   string
		emails []Email
		want   string
	}{
		{
			"primary wins over order",
			[]Email{{Value: "work@ex.com"}, {Value: "home@ex.com", Primary: true}},
			"home@ex.com",
		},
		{
			"first listed when none primary",
			[]Email{{Value: "work@ex.com"}, {Value: "home@ex.com"}},
			"work@ex.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewUserRecord(store.NewMemory(), testBase)
			require.NoError(t, adapter.Apply(&UserResource{UserName: "x", Emails: tt.emails}))
			require.Len(t, adapter.Resource().Emails, 1)
			assert.Equal(t, tt.want, adapter.Resource().Emails[0].Value)
		})
	}
}

func TestUserEmailClearedWhenAbsent(t *testing.T) {
	mem := store.NewMemory()
	adapter := NewUserRecord(mem, testBase)
	require.NoError(t, adapter.Apply(&UserResource{
		UserName: "alice",
		Emails:   []Email{{Value: "alice@ex.com"}},
	}))
	require.Len(t, adapter.Resource().Emails, 1)

	// a replace body without emails drops the stored address
	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice"}))
	assert.Empty(t, adapter.Resource().Emails)

	// same for an explicitly empty list
	require.NoError(t, adapter.Apply(&UserResource{
		UserName: "alice",
		Emails:   []Email{{Value: "alice@ex.com"}},
	}))
	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice", Emails: []Email{}}))
	assert.Empty(t, adapter.Resource().Emails)
}

func TestUserActiveAbsentLeavesFlag(t *testing.T) {
	mem := store.NewMemory()
	adapter := NewUserRecord(mem, testBase)
	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice", Active: boolPtr(false)}))
	assert.False(t, adapter.Active())

	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice"}))
	assert.False(t, adapter.Active())
}

func TestUserPasswordHashedNeverRendered(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	adapter := NewUserRecord(mem, testBase)
	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice", Password: "hunter22"}))
	require.NoError(t, adapter.Save(ctx))

	assert.Empty(t, adapter.Resource().Password)

	stored, err := mem.GetUser(ctx, adapter.ID())
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("hunter22")))
}

func TestUserPatchReplace(t *testing.T) {
	mem := store.NewMemory()
	adapter := NewUserRecord(mem, testBase)
	require.NoError(t, adapter.Apply(&UserResource{UserName: "alice", Active: boolPtr(true)}))

	ops := []PatchOperation{
		{Op: "replace", Path: "active", Value: false},
		{Op: "replace", Value: map[string]interface{}{"userName": "alice2"}},
		{Op: "replace", Path: "name.givenName", Value: "Alice"},
	}
	require.NoError(t, adapter.ApplyPatch(ops))

	out := adapter.Resource()
	assert.False(t, *out.Active)
	assert.Equal(t, "alice2", out.UserName)
	assert.Equal(t, "Alice", out.Name.GivenName)
}

func TestUserPatchUnsupported(t *testing.T) {
	adapter := NewUserRecord(store.NewMemory(), testBase)

	err := adapter.ApplyPatch([]PatchOperation{{Op: "add", Path: "userName", Value: "x"}})
	var scimErr *Error
	require.ErrorAs(t, err, &scimErr)
	assert.Equal(t, 501, scimErr.Status)

	err = adapter.ApplyPatch([]PatchOperation{{Op: "replace", Path: "photos", Value: "x"}})
	require.ErrorAs(t, err, &scimErr)
	assert.Equal(t, 501, scimErr.Status)
}

func TestGroupRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	u := &store.User{ID: "u1", UserName: "alice", Active: true}
	require.NoError(t, mem.CreateUser(ctx, u))

	adapter := NewGroupRecord(mem, testBase)
	members := []MemberRef{{Value: "u1"}}
	require.NoError(t, adapter.Apply(&GroupResource{DisplayName: "Engineering", Members: &members}))
	require.NoError(t, adapter.Save(ctx))

	g, err := mem.GetGroup(ctx, adapter.ID())
	require.NoError(t, err)

	out := NewGroupAdapter(mem, testBase, g).Resource()
	assert.Equal(t, "Engineering", out.DisplayName)
	require.NotNil(t, out.Members)
	require.Len(t, *out.Members, 1)
	assert.Equal(t, "u1", (*out.Members)[0].Value)
	assert.Equal(t, "alice", (*out.Members)[0].Display)
	assert.Contains(t, out.Schemas, SchemaGroup)
}

func TestGroupMembersAbsentLeavesMembership(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateUser(ctx, &store.User{ID: "u1", UserName: "alice", Active: true}))
	require.NoError(t, mem.CreateGroup(ctx, &store.Group{ID: "g1", Name: "Engineering"}, []string{"u1"}))

	g, err := mem.GetGroup(ctx, "g1")
	require.NoError(t, err)

	adapter := NewGroupAdapter(mem, testBase, g)
	require.NoError(t, adapter.Apply(&GroupResource{DisplayName: "Platform"}))
	require.NoError(t, adapter.Save(ctx))

	g, err = mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Platform", g.Name)
	assert.Len(t, g.Members, 1)
}

func TestGroupMembersEmptyListClears(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateUser(ctx, &store.User{ID: "u1", UserName: "alice", Active: true}))
	require.NoError(t, mem.CreateGroup(ctx, &store.Group{ID: "g1", Name: "Engineering"}, []string{"u1"}))

	g, err := mem.GetGroup(ctx, "g1")
	require.NoError(t, err)

	adapter := NewGroupAdapter(mem, testBase, g)
	empty := []MemberRef{}
	require.NoError(t, adapter.Apply(&GroupResource{DisplayName: "Engineering", Members: &empty}))
	require.NoError(t, adapter.Save(ctx))

	g, err = mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, g.Members)
}

func TestGroupPatchAddUnknownMemberAtomic(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateUser(ctx, &store.User{ID: "u1", UserName: "alice", Active: true}))
	require.NoError(t, mem.CreateGroup(ctx, &store.Group{ID: "g1", Name: "Engineering"}, []string{"u1"}))

	g, err := mem.GetGroup(ctx, "g1")
	require.NoError(t, err)

	adapter := NewGroupAdapter(mem, testBase, g)
	err = adapter.ApplyPatch(ctx, []PatchOperation{{
		Op:    "add",
		Path:  "members",
		Value: []interface{}{map[string]interface{}{"value": "u1"}, map[string]interface{}{"value": "999999"}},
	}})

	var scimErr *Error
	require.ErrorAs(t, err, &scimErr)
	assert.Equal(t, 409, scimErr.Status)

	g, err = mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, g.Members, 1)
	assert.Equal(t, "u1", g.Members[0].UserID)
}

func TestGroupPatchAddRemoveMembers(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, mem.CreateUser(ctx, &store.User{ID: "u1", UserName: "alice", Active: true}))
	require.NoError(t, mem.CreateUser(ctx, &store.User{ID: "u2", UserName: "bob", Active: true}))
	require.NoError(t, mem.CreateGroup(ctx, &store.Group{ID: "g1", Name: "Engineering"}, []string{"u1"}))

	g, err := mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	adapter := NewGroupAdapter(mem, testBase, g)

	require.NoError(t, adapter.ApplyPatch(ctx, []PatchOperation{{
		Op: "add", Path: "members",
		Value: []interface{}{map[string]interface{}{"value": "u2"}},
	}}))

	g, err = mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, g.Members, 2)

	require.NoError(t, adapter.ApplyPatch(ctx, []PatchOperation{{
		Op: "remove", Path: "members",
		Value: []interface{}{map[string]interface{}{"value": "u1"}},
	}}))

	g, err = mem.GetGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, g.Members, 1)
	assert.Equal(t, "u2", g.Members[0].UserID)
}

func TestGroupPatchUnsupportedOp(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateGroup(ctx, &store.Group{ID: "g1", Name: "Engineering"}, nil))

	g, err := mem.GetGroup(ctx, "g1")
	require.NoError(t, err)

	err = NewGroupAdapter(mem, testBase, g).ApplyPatch(ctx, []PatchOperation{{Op: "merge", Path: "members"}})
	var scimErr *Error
	require.ErrorAs(t, err, &scimErr)
	assert.Equal(t, 501, scimErr.Status)
}

func TestParseOpCode(t *testing.T) {
	assert.Equal(t, OpAdd, ParseOpCode("add"))
	assert.Equal(t, OpAdd, ParseOpCode("Add"))
	assert.Equal(t, OpRemove, ParseOpCode("REMOVE"))
	assert.Equal(t, OpReplace, ParseOpCode("replace"))
	assert.Equal(t, OpUnsupported, ParseOpCode("merge"))
	assert.Equal(t, OpUnsupported, ParseOpCode(""))
}
