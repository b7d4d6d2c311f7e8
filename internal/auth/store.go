package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
// Uniqueness of emails, role names and permission names is enforced at the
// store layer, not only by application checks, so concurrent first boots and
// concurrent admin creates cannot produce duplicates.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages user records and their role assignments.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	// Delete removes the user together with its role assignments and reports
	// whether a row was actually removed.
	Delete(ctx context.Context, id string) (bool, error)
	// SetRoles replaces the full assignment set and the primary role in one
	// operation.
	SetRoles(ctx context.Context, userID string, roleIDs []string, primaryRoleID string) error
	// AddRole is an atomic add-to-set: concurrent adds from two admins must
	// both land.
	AddRole(ctx context.Context, userID, roleID string) error
}

// RoleStore manages roles and their permission membership.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	ForUser(ctx context.Context, userID string) ([]Role, error)
	// AddPermission is an atomic add-to-set keyed by permission name.
	AddPermission(ctx context.Context, roleID, permissionName string) error
	SetPermissions(ctx context.Context, roleID string, permissionNames []string) error
	PermissionsFor(ctx context.Context, roleID string) ([]Permission, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	// Ensure is idempotent get-or-create keyed by unique name; safe to run
	// concurrently across replicas.
	Ensure(ctx context.Context, perms []Permission) error
	// Create fails with ErrConflict when the name already exists.
	Create(ctx context.Context, perm *Permission) error
	List(ctx context.Context) ([]Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
}
