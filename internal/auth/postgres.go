package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"custodia/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Uniqueness (email, role name,
// permission name) and referential integrity live in the schema, so races
// between replicas or concurrent admins surface as constraint violations
// mapped to ErrConflict.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore             { return &pgUserStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore             { return &pgRoleStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore { return &pgPermStore{db: s.db} }

// User store ---------------------------------------------------------------

type pgUserStore struct{ db *sql.DB }

func (s *pgUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users(id, first_name, last_name, email, phone, address, password_hash, primary_role_id)
		values($1,$2,$3,$4,$5,$6,$7,$8)
		returning created_at, updated_at`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.Address, u.PasswordHash, u.PrimaryRoleID,
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	for _, roleID := range u.RoleIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
			u.ID, roleID,
		); err != nil {
			return mapPgError(err)
		}
	}
	return tx.Commit()
}

const userColumns = `id, first_name, last_name, email, phone, address, password_hash, primary_role_id, created_at, updated_at`

func (s *pgUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return s.scanUser(ctx, row)
}

func (s *pgUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return s.scanUser(ctx, row)
}

func (s *pgUserStore) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Address,
		&u.PasswordHash, &u.PrimaryRoleID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	roleIDs, err := s.roleIDs(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.RoleIDs = roleIDs
	return &u, nil
}

func (s *pgUserStore) roleIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select role_id from user_roles where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var roleID string
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		out = append(out, roleID)
	}
	return out, rows.Err()
}

func (s *pgUserStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	index := make(map[string]*User)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.Address,
			&u.PasswordHash, &u.PrimaryRoleID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
		index[u.ID] = &u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	assignRows, err := s.db.QueryContext(ctx,
		`select user_id, role_id from user_roles order by created_at`)
	if err != nil {
		return nil, err
	}
	defer assignRows.Close()
	for assignRows.Next() {
		var userID, roleID string
		if err := assignRows.Scan(&userID, &roleID); err != nil {
			return nil, err
		}
		if u, ok := index[userID]; ok {
			u.RoleIDs = append(u.RoleIDs, roleID)
		}
	}
	return users, assignRows.Err()
}

func (s *pgUserStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set first_name=$2, last_name=$3, phone=$4, address=$5, password_hash=$6, updated_at=now()
		where id=$1`,
		u.ID, u.FirstName, u.LastName, u.Phone, u.Address, u.PasswordHash,
	)
	if err != nil {
		return mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the assignments and the user row in one transaction and
// reports whether the user row was actually removed.
func (s *pgUserStore) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, id); err != nil {
		return false, mapPgError(err)
	}
	res, err := tx.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return false, mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *pgUserStore) SetRoles(ctx context.Context, userID string, roleIDs []string, primaryRoleID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, userID); err != nil {
		return mapPgError(err)
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role_id) values($1,$2)`, userID, roleID,
		); err != nil {
			return mapPgError(err)
		}
	}
	res, err := tx.ExecContext(ctx,
		`update users set primary_role_id=$2, updated_at=now() where id=$1`, userID, primaryRoleID)
	if err != nil {
		return mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *pgUserStore) AddRole(ctx context.Context, userID, roleID string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where id=$1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx,
		`insert into user_roles(user_id, role_id) values($1,$2) on conflict do nothing`,
		userID, roleID,
	)
	return mapPgError(err)
}

// Role store ---------------------------------------------------------------

type pgRoleStore struct{ db *sql.DB }

func (s *pgRoleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles(id, name, description) values($1,$2,$3)
		returning created_at, updated_at`,
		role.ID, role.Name, role.Description,
	)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *pgRoleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles where id=$1`, id)
	return scanRole(row)
}

func (s *pgRoleStore) FindByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at, updated_at from roles where name=$1`, name)
	return scanRole(row)
}

func scanRole(row *sql.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *pgRoleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at, updated_at from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *pgRoleStore) Update(ctx context.Context, role *Role) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set description=$2, updated_at=now() where id=$1`, role.ID, role.Description)
	if err != nil {
		return mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgRoleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, id); err != nil {
		return mapPgError(err)
	}
	// user_roles has no cascade on role_id: a role still assigned to users
	// raises a foreign key violation, mapped to ErrConflict.
	res, err := tx.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *pgRoleStore) ForUser(ctx context.Context, userID string) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id=$1
		order by r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *pgRoleStore) AddPermission(ctx context.Context, roleID, permissionName string) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from roles where id=$1)`, roleID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions(role_id, permission_id)
		select $1, id from permissions where name=$2
		on conflict do nothing`, roleID, permissionName)
	return mapPgError(err)
}

func (s *pgRoleStore) SetPermissions(ctx context.Context, roleID string, permissionNames []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`select exists(select 1 from roles where id=$1)`, roleID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return mapPgError(err)
	}
	for _, name := range permissionNames {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_id)
			select $1, id from permissions where name=$2`, roleID, name,
		)
		if err != nil {
			return mapPgError(err)
		}
		// The insert-select matches zero rows for an unknown permission
		// name; report it instead of committing a partial grant.
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrNotFound
		}
	}
	return tx.Commit()
}

func (s *pgRoleStore) PermissionsFor(ctx context.Context, roleID string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id=$1
		order by p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Permission store ---------------------------------------------------------

type pgPermStore struct{ db *sql.DB }

func (s *pgPermStore) Ensure(ctx context.Context, perms []Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions(id, name, description) values($1,$2,$3)
			on conflict (name) do nothing`,
			p.ID, p.Name, p.Description,
		); err != nil {
			return mapPgError(err)
		}
	}
	return nil
}

func (s *pgPermStore) Create(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions(id, name, description) values($1,$2,$3)
		returning created_at`,
		perm.ID, perm.Name, perm.Description,
	)
	if err := row.Scan(&perm.CreatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (s *pgPermStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, created_at from permissions order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *pgPermStore) FindByName(ctx context.Context, name string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, created_at from permissions where name=$1`, name)
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// mapPgError converts constraint violations into sentinel errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrForeignKeyViolation:
			return ErrConflict
		}
	}
	return err
}
