package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/scimgate/scimgate/internal/filter"
)

// Memory is an in-memory Store used by tests and local development. All
// methods are safe for concurrent use; multi-step writes hold the lock for
// their full duration, so they are atomic with respect to other callers.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]*User
	groups  map[string]*Group
	members map[string]map[string]struct{} // group id -> user ids
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*User),
		groups:  make(map[string]*Group),
		members: make(map[string]map[string]struct{}),
	}
}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error {
	return nil
}

func (s *Memory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.UserName == u.UserName {
			return ErrDuplicate
		}
	}
	if _, ok := s.users[u.ID]; ok {
		return ErrDuplicate
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *Memory) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.cloneUser(u), nil
}

func (s *Memory) UpdateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range s.users {
		if id != u.ID && other.UserName == u.UserName {
			return ErrDuplicate
		}
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *Memory) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, id)
	for _, set := range s.members {
		delete(set, id)
	}
	return nil
}

func (s *Memory) ListUsers(ctx context.Context) ([]User, error) {
	return s.SearchUsers(ctx, nil)
}

func (s *Memory) SearchUsers(ctx context.Context, expr *filter.Expr) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []User
	for _, u := range s.users {
		ok, err := filter.Match(expr, userAttrs(u))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *s.cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) CreateGroup(ctx context.Context, g *Group, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return ErrDuplicate
		}
	}
	if _, ok := s.groups[g.ID]; ok {
		return ErrDuplicate
	}
	if err := s.checkMembers(members); err != nil {
		return err
	}

	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	clone := *g
	clone.Members = nil
	s.groups[g.ID] = &clone
	s.members[g.ID] = toSet(members)
	return nil
}

func (s *Memory) GetGroup(ctx context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.cloneGroup(g), nil
}

func (s *Memory) UpdateGroup(ctx context.Context, g *Group, members []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[g.ID]
	if !ok {
		return ErrNotFound
	}
	for id, other := range s.groups {
		if id != g.ID && other.Name == g.Name {
			return ErrDuplicate
		}
	}
	if members != nil {
		if err := s.checkMembers(members); err != nil {
			return err
		}
	}

	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = time.Now().UTC()

	clone := *g
	clone.Members = nil
	s.groups[g.ID] = &clone
	if members != nil {
		s.members[g.ID] = toSet(members)
	}
	return nil
}

func (s *Memory) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

func (s *Memory) ListGroups(ctx context.Context) ([]Group, error) {
	return s.SearchGroups(ctx, nil)
}

func (s *Memory) SearchGroups(ctx context.Context, expr *filter.Expr) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Group
	for _, g := range s.groups {
		ok, err := filter.Match(expr, map[string]string{
			"id":          g.ID,
			"displayName": g.Name,
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *s.cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkMembers(userIDs); err != nil {
		return err
	}

	for _, id := range userIDs {
		set[id] = struct{}{}
	}
	return nil
}

func (s *Memory) RemoveGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.members[groupID]
	if !ok {
		return ErrNotFound
	}
	if err := s.checkMembers(userIDs); err != nil {
		return err
	}

	for _, id := range userIDs {
		delete(set, id)
	}
	return nil
}

// checkMembers rejects the whole set when any id is unknown. Callers hold
// the write lock, so no row is mutated before validation passes.
func (s *Memory) checkMembers(userIDs []string) error {
	for _, id := range userIDs {
		if _, ok := s.users[id]; !ok {
			return ErrMemberNotFound
		}
	}
	return nil
}

// cloneUser copies a user and attaches its group references, callers must
// hold at least the read lock.
func (s *Memory) cloneUser(u *User) *User {
	clone := *u
	clone.Groups = nil
	for groupID, set := range s.members {
		if _, ok := set[u.ID]; ok {
			clone.Groups = append(clone.Groups, GroupRef{ID: groupID, Name: s.groups[groupID].Name})
		}
	}
	sort.Slice(clone.Groups, func(i, j int) bool { return clone.Groups[i].ID < clone.Groups[j].ID })
	return &clone
}

func (s *Memory) cloneGroup(g *Group) *Group {
	clone := *g
	clone.Members = nil
	for userID := range s.members[g.ID] {
		clone.Members = append(clone.Members, Member{UserID: userID, UserName: s.users[userID].UserName})
	}
	sort.Slice(clone.Members, func(i, j int) bool { return clone.Members[i].UserID < clone.Members[j].UserID })
	return &clone
}

func userAttrs(u *User) map[string]string {
	return map[string]string{
		"id":              u.ID,
		"userName":        u.UserName,
		"emails":          u.Email,
		"emails.value":    u.Email,
		"name.givenName":  u.GivenName,
		"name.familyName": u.FamilyName,
		"active":          strconv.FormatBool(u.Active),
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
