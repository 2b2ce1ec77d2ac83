package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scimgate/scimgate/internal/filter"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// Postgres implements Store on top of a pgx connection pool. Users and their
// profile rows, and groups and their membership sets, are written in single
// transactions.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping checks the database connection.
func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const userColumns = `u.id, u.username, u.given_name, u.family_name, u.email, u.active, u.password_hash,
	COALESCE(p.phone_number, ''), COALESCE(p.department, ''), COALESCE(p.company_name, ''),
	COALESCE(p.country, ''), COALESCE(p.opt_in, ''), u.created_at, u.updated_at`

const userFrom = `FROM users u LEFT JOIN profiles p ON p.user_id = u.id`

// CreateUser inserts the user and its profile row in one transaction.
func (s *Postgres) CreateUser(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, username, given_name, family_name, email, active, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.UserName, u.GivenName, u.FamilyName, u.Email, u.Active, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return translateError(err, "insert user")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (user_id, phone_number, department, company_name, country, opt_in)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Profile.PhoneNumber, u.Profile.Department, u.Profile.CompanyName, u.Profile.Country, u.Profile.OptIn)
	if err != nil {
		return translateError(err, "insert profile")
	}

	return tx.Commit(ctx)
}

// GetUser retrieves a user by id with its profile and group memberships.
func (s *Postgres) GetUser(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` `+userFrom+` WHERE u.id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	if err := s.hydrateGroups(ctx, []*User{u}); err != nil {
		return nil, err
	}

	return u, nil
}

// UpdateUser updates the user and upserts its profile row in one transaction.
func (s *Postgres) UpdateUser(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	u.UpdatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE users SET username = $2, given_name = $3, family_name = $4, email = $5,
			active = $6, password_hash = $7, updated_at = $8
		WHERE id = $1
	`, u.ID, u.UserName, u.GivenName, u.FamilyName, u.Email, u.Active, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return translateError(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (user_id, phone_number, department, company_name, country, opt_in)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_number = EXCLUDED.phone_number, department = EXCLUDED.department,
			company_name = EXCLUDED.company_name, country = EXCLUDED.country, opt_in = EXCLUDED.opt_in
	`, u.ID, u.Profile.PhoneNumber, u.Profile.Department, u.Profile.CompanyName, u.Profile.Country, u.Profile.OptIn)
	if err != nil {
		return translateError(err, "upsert profile")
	}

	return tx.Commit(ctx)
}

// DeleteUser removes the user; profile and membership rows go with it via
// ON DELETE CASCADE. Deleting an absent user is a no-op.
func (s *Postgres) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ListUsers returns all users ordered by id ascending.
func (s *Postgres) ListUsers(ctx context.Context) ([]User, error) {
	return s.SearchUsers(ctx, nil)
}

// SearchUsers returns users matching the filter expression, ordered by id
// ascending. The expression is translated to a parameterized WHERE clause;
// attribute names outside the allow-list are rejected by the translator.
func (s *Postgres) SearchUsers(ctx context.Context, expr *filter.Expr) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sqlFilter, err := filter.ToSQL(expr, prefixFields(filter.UserFields(), "u."), 1)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + userColumns + ` ` + userFrom
	if sqlFilter.WhereClause != "" {
		query += ` WHERE ` + sqlFilter.WhereClause
	}
	query += ` ORDER BY u.id ASC`

	rows, err := s.pool.Query(ctx, query, sqlFilter.Args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	var refs []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	for i := range users {
		refs = append(refs, &users[i])
	}
	if err := s.hydrateGroups(ctx, refs); err != nil {
		return nil, err
	}

	return users, nil
}

// hydrateGroups attaches group references to the given users in one query.
func (s *Postgres) hydrateGroups(ctx context.Context, users []*User) error {
	if len(users) == 0 {
		return nil
	}

	ids := make([]string, len(users))
	byID := make(map[string]*User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		byID[u.ID] = u
	}

	rows, err := s.pool.Query(ctx, `
		SELECT gm.user_id, g.id, g.name
		FROM group_members gm JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = ANY($1)
		ORDER BY g.id ASC
	`, ids)
	if err != nil {
		return fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var ref GroupRef
		if err := rows.Scan(&userID, &ref.ID, &ref.Name); err != nil {
			return fmt.Errorf("scan membership: %w", err)
		}
		if u, ok := byID[userID]; ok {
			u.Groups = append(u.Groups, ref)
		}
	}
	return rows.Err()
}

// CreateGroup inserts the group and, when members is non-nil, its membership
// set in one transaction. Unknown member ids fail the whole call.
func (s *Postgres) CreateGroup(ctx context.Context, g *Group, members []string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO groups (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)
	`, g.ID, g.Name, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return translateError(err, "insert group")
	}

	if members != nil {
		if err := replaceMembers(ctx, tx, g.ID, members); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetGroup retrieves a group by id with its resolved member list.
func (s *Postgres) GetGroup(ctx context.Context, id string) (*Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var g Group
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query group: %w", err)
	}

	if err := s.hydrateMembers(ctx, &g); err != nil {
		return nil, err
	}

	return &g, nil
}

func (s *Postgres) hydrateMembers(ctx context.Context, g *Group) error {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username
		FROM group_members gm JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.id ASC
	`, g.ID)
	if err != nil {
		return fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.UserName); err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, m)
	}
	return rows.Err()
}

// UpdateGroup updates the group and, when members is non-nil, replaces the
// full membership set in the same transaction.
func (s *Postgres) UpdateGroup(ctx context.Context, g *Group, members []string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	g.UpdatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE groups SET name = $2, updated_at = $3 WHERE id = $1
	`, g.ID, g.Name, g.UpdatedAt)
	if err != nil {
		return translateError(err, "update group")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if members != nil {
		if _, err := tx.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, g.ID); err != nil {
			return fmt.Errorf("clear members: %w", err)
		}
		if err := replaceMembers(ctx, tx, g.ID, members); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// DeleteGroup removes the group and its memberships. Deleting an absent
// group is a no-op.
func (s *Postgres) DeleteGroup(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// ListGroups returns all groups ordered by id ascending.
func (s *Postgres) ListGroups(ctx context.Context) ([]Group, error) {
	return s.SearchGroups(ctx, nil)
}

// SearchGroups returns groups matching the filter expression, ordered by id
// ascending.
func (s *Postgres) SearchGroups(ctx context.Context, expr *filter.Expr) ([]Group, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sqlFilter, err := filter.ToSQL(expr, filter.GroupFields(), 1)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, created_at, updated_at FROM groups`
	if sqlFilter.WhereClause != "" {
		query += ` WHERE ` + sqlFilter.WhereClause
	}
	query += ` ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, sqlFilter.Args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	for i := range groups {
		if err := s.hydrateMembers(ctx, &groups[i]); err != nil {
			return nil, err
		}
	}

	return groups, nil
}

// AddGroupMembers adds the given users to the group. All ids are validated
// before any row is written; an unknown id fails the whole call.
func (s *Postgres) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := requireGroup(ctx, tx, groupID); err != nil {
		return err
	}
	if err := requireUsers(ctx, tx, userIDs); err != nil {
		return err
	}

	for _, userID := range userIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, groupID, userID)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RemoveGroupMembers removes the given users from the group. All ids must
// resolve to existing users or the whole call fails.
func (s *Postgres) RemoveGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := requireGroup(ctx, tx, groupID); err != nil {
		return err
	}
	if err := requireUsers(ctx, tx, userIDs); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM group_members WHERE group_id = $1 AND user_id = ANY($2)
	`, groupID, userIDs)
	if err != nil {
		return fmt.Errorf("delete members: %w", err)
	}

	return tx.Commit(ctx)
}

// replaceMembers validates and inserts the full membership set inside the
// caller's transaction.
func replaceMembers(ctx context.Context, tx pgx.Tx, groupID string, userIDs []string) error {
	if err := requireUsers(ctx, tx, userIDs); err != nil {
		return err
	}

	for _, userID := range userIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, groupID, userID)
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}

	return nil
}

// requireUsers fails with ErrMemberNotFound unless every id resolves to an
// existing user.
func requireUsers(ctx context.Context, tx pgx.Tx, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	unique := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		unique[id] = struct{}{}
	}
	distinct := make([]string, 0, len(unique))
	for id := range unique {
		distinct = append(distinct, id)
	}

	var count int
	err := tx.QueryRow(ctx, `SELECT count(*) FROM users WHERE id = ANY($1)`, distinct).Scan(&count)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count != len(distinct) {
		return ErrMemberNotFound
	}

	return nil
}

func requireGroup(ctx context.Context, tx pgx.Tx, groupID string) error {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

// scanUser scans a row produced with userColumns.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.UserName, &u.GivenName, &u.FamilyName, &u.Email, &u.Active, &u.PasswordHash,
		&u.Profile.PhoneNumber, &u.Profile.Department, &u.Profile.CompanyName,
		&u.Profile.Country, &u.Profile.OptIn, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// translateError maps driver errors onto the store's sentinel errors.
func translateError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", op, err)
}

// prefixFields qualifies allow-list column names with a table alias.
func prefixFields(fields map[string]string, prefix string) map[string]string {
	out := make(map[string]string, len(fields))
	for attr, col := range fields {
		out[attr] = prefix + col
	}
	return out
}
