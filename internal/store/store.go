// Package store provides the identity store consumed by the SCIM layer:
// users with an attached profile, groups, and group memberships. Two
// implementations exist, a PostgreSQL store for production and an in-memory
// store for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scimgate/scimgate/internal/filter"
)

var (
	// ErrNotFound is returned when a record id does not resolve.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned on a uniqueness conflict (username, group name).
	ErrDuplicate = errors.New("duplicate record")

	// ErrMemberNotFound is returned when a membership change references a
	// user id that does not resolve. No partial change is applied.
	ErrMemberNotFound = errors.New("member user not found")
)

// User is a native identity record. Groups is hydrated on read and ignored
// on write; memberships are owned by the group side.
type User struct {
	ID           string
	UserName     string
	GivenName    string
	FamilyName   string
	Email        string
	Active       bool
	PasswordHash string
	Profile      Profile
	Groups       []GroupRef
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds the extension-schema attributes attached to a user.
type Profile struct {
	PhoneNumber string
	Department  string
	CompanyName string
	Country     string
	OptIn       string
}

// GroupRef is a lightweight reference to a group a user belongs to.
type GroupRef struct {
	ID   string
	Name string
}

// Group is a native group record. Members is hydrated on read; writes go
// through the members argument of CreateGroup/UpdateGroup or the
// Add/RemoveGroupMembers operations.
type Group struct {
	ID        string
	Name      string
	Members   []Member
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is a resolved group member.
type Member struct {
	UserID   string
	UserName string
}

// Store is the identity store contract. Implementations must make multi-step
// writes (user + profile, group + membership set) atomic: either the whole
// update is visible or none of it. Membership arguments referencing unknown
// user ids fail the whole call with ErrMemberNotFound, validated inside the
// same transaction as the mutation.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// DeleteUser removes the user and its memberships. Deleting an absent
	// user is a no-op.
	DeleteUser(ctx context.Context, id string) error
	// ListUsers returns all users ordered by id ascending.
	ListUsers(ctx context.Context) ([]User, error)
	// SearchUsers returns users matching the filter expression, ordered by
	// id ascending. A nil expression matches all users.
	SearchUsers(ctx context.Context, expr *filter.Expr) ([]User, error)

	// CreateGroup persists the group and, when members is non-nil, its full
	// membership set in one transaction.
	CreateGroup(ctx context.Context, g *Group, members []string) error
	GetGroup(ctx context.Context, id string) (*Group, error)
	// UpdateGroup persists the group. A non-nil members slice fully replaces
	// the membership set; nil leaves memberships unchanged.
	UpdateGroup(ctx context.Context, g *Group, members []string) error
	DeleteGroup(ctx context.Context, id string) error
	ListGroups(ctx context.Context) ([]Group, error)
	SearchGroups(ctx context.Context, expr *filter.Expr) ([]Group, error)
	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error
	RemoveGroupMembers(ctx context.Context, groupID string, userIDs []string) error

	Ping(ctx context.Context) error
}
