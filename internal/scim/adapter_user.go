package scim

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/scimgate/scimgate/internal/store"
)

// UserAdapter wraps one user record and converts it between its store form
// and its SCIM wire form. Apply mutates the record in memory only; Save
// persists it in one transaction.
type UserAdapter struct {
	store store.Store
	base  string
	user  *store.User
	isNew bool
}

// NewUserAdapter wraps an existing user record.
func NewUserAdapter(s store.Store, base string, u *store.User) *UserAdapter {
	return &UserAdapter{store: s, base: base, user: u}
}

// NewUserRecord wraps a fresh record for creation.
func NewUserRecord(s store.Store, base string) *UserAdapter {
	return &UserAdapter{store: s, base: base, user: &store.User{Active: true}, isNew: true}
}

// ID returns the record's primary key.
func (a *UserAdapter) ID() string {
	return a.user.ID
}

// Location returns the absolute URL of the resource.
func (a *UserAdapter) Location() string {
	return fmt.Sprintf("%s/Users/%s", a.base, a.user.ID)
}

// Active reports the record's activation flag.
func (a *UserAdapter) Active() bool {
	return a.user.Active
}

// Resource renders the SCIM representation. The password hash is never
// included.
func (a *UserAdapter) Resource() *UserResource {
	u := a.user

	res := &UserResource{
		Schemas:     []string{SchemaUser, SchemaUserExtension},
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: displayName(u),
		Active:      boolPtr(u.Active),
		Name: &Name{
			GivenName:  u.GivenName,
			FamilyName: u.FamilyName,
		},
		Extension: &UserExtension{
			PhoneNumber: u.Profile.PhoneNumber,
			Department:  u.Profile.Department,
			CompanyName: u.Profile.CompanyName,
			Country:     u.Profile.Country,
			OptIn:       u.Profile.OptIn,
		},
		Meta: &Meta{
			ResourceType: "User",
			Location:     a.Location(),
		},
	}

	if u.Email != "" {
		res.Emails = []Email{{Value: u.Email, Primary: true}}
	}
	for _, g := range u.Groups {
		res.Groups = append(res.Groups, GroupRef{Value: g.ID, Display: g.Name})
	}

	return res
}

// displayName is "First Last" when both parts are present, otherwise the
// username.
func displayName(u *store.User) string {
	if u.GivenName != "" && u.FamilyName != "" {
		return u.GivenName + " " + u.FamilyName
	}
	return u.UserName
}

// Apply consumes an inbound representation and mutates the wrapped record.
// Absent userName and name parts become empty strings, and an absent or empty
// emails list clears the stored address. An absent active key leaves the flag
// unchanged.
func (a *UserAdapter) Apply(res *UserResource) error {
	u := a.user

	if a.isNew && u.ID == "" {
		u.ID = uuid.New().String()
	}

	u.UserName = res.UserName
	u.GivenName = ""
	u.FamilyName = ""
	if res.Name != nil {
		u.GivenName = res.Name.GivenName
		u.FamilyName = res.Name.FamilyName
	}

	// a replace body without emails clears the stored address
	u.Email, _ = primaryEmail(res.Emails)

	if res.Active != nil {
		u.Active = *res.Active
	}

	if res.Password != "" {
		if err := a.setPassword(res.Password); err != nil {
			return err
		}
	}

	if res.Extension != nil {
		u.Profile = store.Profile{
			PhoneNumber: res.Extension.PhoneNumber,
			Department:  res.Extension.Department,
			CompanyName: res.Extension.CompanyName,
			Country:     res.Extension.Country,
			OptIn:       res.Extension.OptIn,
		}
	}

	return nil
}

// primaryEmail picks the first email marked primary, else the first listed.
func primaryEmail(emails []Email) (string, bool) {
	if len(emails) == 0 {
		return "", false
	}
	for _, e := range emails {
		if e.Primary {
			return e.Value, true
		}
	}
	return emails[0].Value, true
}

// setPassword stores a one-way hash; the cleartext is dropped here and never
// persisted or logged.
func (a *UserAdapter) setPassword(cleartext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(cleartext), bcrypt.DefaultCost)
	if err != nil {
		return Internal(err)
	}
	a.user.PasswordHash = string(hash)
	return nil
}

// Save persists the record. The base row and its profile row are written in
// one transaction by the store.
func (a *UserAdapter) Save(ctx context.Context) error {
	var err error
	if a.isNew {
		err = a.store.CreateUser(ctx, a.user)
	} else {
		err = a.store.UpdateUser(ctx, a.user)
	}
	if err != nil {
		return storeError(err)
	}
	a.isNew = false
	return nil
}

// Delete removes the record. An already-deleted record is a no-op.
func (a *UserAdapter) Delete(ctx context.Context) error {
	if err := a.store.DeleteUser(ctx, a.user.ID); err != nil {
		return storeError(err)
	}
	return nil
}

// ApplyPatch applies the operations in request order, stopping at the first
// failure. Users support replace only: either a valueless path with an
// attribute map, or an explicit path. PATCH on active flips the flag and
// never deletes the record.
func (a *UserAdapter) ApplyPatch(ops []PatchOperation) error {
	for _, op := range ops {
		if op.Code() != OpReplace {
			return NotImplemented(fmt.Sprintf("PATCH op %q not supported for Users", op.Op))
		}
		if err := a.patchReplace(op); err != nil {
			return err
		}
	}
	return nil
}

func (a *UserAdapter) patchReplace(op PatchOperation) error {
	if op.Path == "" {
		attrs, ok := op.Value.(map[string]interface{})
		if !ok {
			return BadRequest("PATCH replace without path requires an attribute object")
		}
		for path, value := range attrs {
			if err := a.patchAttr(path, value); err != nil {
				return err
			}
		}
		return nil
	}
	return a.patchAttr(op.Path, op.Value)
}

func (a *UserAdapter) patchAttr(path string, value interface{}) error {
	u := a.user

	switch path {
	case "userName":
		s, ok := value.(string)
		if !ok {
			return BadRequest("userName must be a string")
		}
		u.UserName = s

	case "name":
		attrs, ok := value.(map[string]interface{})
		if !ok {
			return BadRequest("name must be an object")
		}
		if v, ok := attrs["givenName"].(string); ok {
			u.GivenName = v
		}
		if v, ok := attrs["familyName"].(string); ok {
			u.FamilyName = v
		}

	case "name.givenName":
		s, ok := value.(string)
		if !ok {
			return BadRequest("name.givenName must be a string")
		}
		u.GivenName = s

	case "name.familyName":
		s, ok := value.(string)
		if !ok {
			return BadRequest("name.familyName must be a string")
		}
		u.FamilyName = s

	case "active":
		b, ok := value.(bool)
		if !ok {
			return BadRequest("active must be a boolean")
		}
		u.Active = b

	case "password":
		s, ok := value.(string)
		if !ok {
			return BadRequest("password must be a string")
		}
		return a.setPassword(s)

	case "emails":
		emails, err := decodeEmails(value)
		if err != nil {
			return err
		}
		if email, ok := primaryEmail(emails); ok {
			u.Email = email
		}

	default:
		return NotImplemented(fmt.Sprintf("PATCH path %q not supported for Users", path))
	}

	return nil
}

func decodeEmails(value interface{}) ([]Email, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, BadRequest("emails must be a list")
	}

	var emails []Email
	for _, item := range list {
		attrs, ok := item.(map[string]interface{})
		if !ok {
			return nil, BadRequest("emails entries must be objects")
		}
		e := Email{}
		if v, ok := attrs["value"].(string); ok {
			e.Value = v
		}
		if v, ok := attrs["primary"].(bool); ok {
			e.Primary = v
		}
		emails = append(emails, e)
	}

	return emails, nil
}

// UserResourceType is the static metadata document for the User resource.
func UserResourceType(base string) *ResourceType {
	return &ResourceType{
		Schemas:     []string{SchemaResourceType},
		ID:          "User",
		Name:        "User",
		Endpoint:    "/Users",
		Description: "User Account",
		Schema:      SchemaUser,
		Meta: &Meta{
			ResourceType: "ResourceType",
			Location:     base + "/ResourceTypes/User",
		},
	}
}

// storeError maps store sentinels onto the protocol taxonomy. Anything
// unrecognized becomes an internal error.
func storeError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Status: 404, Detail: "Resource not found", Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return Integrity("Resource conflicts with an existing resource")
	case errors.Is(err, store.ErrMemberNotFound):
		return &Error{Status: 409, ScimType: "invalidValue", Detail: "Member id does not resolve to an existing user", Err: err}
	default:
		return Internal(err)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
