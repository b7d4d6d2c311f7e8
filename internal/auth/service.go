package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"custodia/internal/ids"
)

const defaultAccessTTL = 15 * time.Minute

// Service provides authentication, token issuance and RBAC operations on top
// of a Store.
type Service struct {
	store Store
	now   func() time.Time

	secret    []byte
	issuer    string
	accessTTL time.Duration

	// Optional principal cache. Disabled by default: the authorization gate
	// performs one subject lookup per request unless a TTL is configured.
	principals   *gocache.Cache
	principalTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecret sets the HS256 signing secret for issued tokens.
func WithSecret(secret []byte) ServiceOption {
	return func(s *Service) error {
		if len(secret) == 0 {
			return errors.New("auth: secret must not be empty")
		}
		s.secret = secret
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithPrincipalCacheTTL enables caching of resolved principals for the given
// TTL. Permission changes become visible at worst one TTL later; role and
// user mutations made through this Service invalidate eagerly.
func WithPrincipalCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.principalTTL = ttl
			s.principals = gocache.New(ttl, 2*ttl)
		}
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:     store,
		now:       time.Now,
		issuer:    "custodia",
		accessTTL: defaultAccessTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// RegisterParams carries the self-registration payload.
type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Address   string
}

// Register creates a user with the referenced role as its primary and sole
// role. The role reference is resolved by ID first, then by name. A duplicate
// email fails with ErrConflict.
func (s *Service) Register(ctx context.Context, params RegisterParams, roleRef string) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(params.Password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role, err := s.resolveRole(ctx, roleRef)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:            ids.New(),
		FirstName:     strings.TrimSpace(params.FirstName),
		LastName:      strings.TrimSpace(params.LastName),
		Email:         email,
		PasswordHash:  hash,
		Phone:         strings.TrimSpace(params.Phone),
		Address:       strings.TrimSpace(params.Address),
		RoleIDs:       []string{role.ID},
		PrimaryRoleID: role.ID,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies email and password. Unknown emails and hash
// mismatches are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Principal loads a user with its roles and the union of permissions across
// those roles.
func (s *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	if s.principals != nil {
		if v, ok := s.principals.Get(userID); ok {
			return v.(Principal), nil
		}
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	roles, err := s.store.Roles(ctx).ForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	permSet := make(map[string]struct{})
	for _, role := range roles {
		perms, err := s.store.Roles(ctx).PermissionsFor(ctx, role.ID)
		if err != nil {
			return Principal{}, err
		}
		for _, p := range perms {
			permSet[p.Name] = struct{}{}
		}
	}
	principal := Principal{User: user, Roles: roles, Permissions: permSet}
	if s.principals != nil {
		s.principals.Set(userID, principal, s.principalTTL)
	}
	return principal, nil
}

// AuthenticateToken validates a bearer token and resolves its subject to a
// live principal. A subject that no longer exists is rejected.
func (s *Service) AuthenticateToken(ctx context.Context, raw string) (Principal, error) {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return Principal{}, err
	}
	principal, err := s.Principal(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, err
	}
	return principal, nil
}

// Require resolves the principal for userID and ensures it holds perm.
func (s *Service) Require(ctx context.Context, userID, perm string) (Principal, error) {
	principal, err := s.Principal(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !principal.HasPermission(perm) {
		return Principal{}, ErrForbidden
	}
	return principal, nil
}

// CreateUserParams carries the admin-initiated creation payload. UserType
// selects the primary role: "admin" maps to ADMIN, "user" to USER.
type CreateUserParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Address   string
	UserType  string
}

// CreateUser creates a user on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	var roleName string
	switch strings.ToLower(strings.TrimSpace(params.UserType)) {
	case "admin":
		roleName = RoleAdmin
	case "user", "":
		roleName = RoleUser
	default:
		return nil, fmt.Errorf("%w: user type must be admin or user", ErrInvalidInput)
	}
	return s.Register(ctx, RegisterParams{
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     params.Email,
		Password:  params.Password,
		Phone:     params.Phone,
		Address:   params.Address,
	}, roleName)
}

// UpdateUserParams carries a profile update. Nil fields are left unchanged;
// RoleIDs, when present, replaces the full assignment set.
type UpdateUserParams struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	Password  *string
	RoleIDs   []string
}

// UpdateUser applies a profile update. When RoleIDs is present the set must
// be non-empty; if the current primary role is not part of the new set the
// first role of the new set becomes primary.
func (s *Service) UpdateUser(ctx context.Context, id string, params UpdateUserParams) (*User, error) {
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.FirstName != nil {
		user.FirstName = strings.TrimSpace(*params.FirstName)
	}
	if params.LastName != nil {
		user.LastName = strings.TrimSpace(*params.LastName)
	}
	if params.Phone != nil {
		user.Phone = strings.TrimSpace(*params.Phone)
	}
	if params.Address != nil {
		user.Address = strings.TrimSpace(*params.Address)
	}
	if params.Password != nil {
		pw := strings.TrimSpace(*params.Password)
		if pw == "" {
			return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := HashPassword(pw)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if err := users.Update(ctx, user); err != nil {
		return nil, err
	}
	if params.RoleIDs != nil {
		if user, err = s.ReplaceUserRoles(ctx, id, params.RoleIDs); err != nil {
			return nil, err
		}
	}
	s.invalidatePrincipal(id)
	return user, nil
}

// FindUser returns a user by id.
func (s *Service) FindUser(ctx context.Context, id string) (*User, error) {
	return s.store.Users(ctx).Find(ctx, id)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.Users(ctx).List(ctx)
}

// Deletion outcome messages, part of the delete-user response contract.
const (
	successfulDeletion = "User deleted successfully"
	failedDeletion     = "User deletion failed"
)

// DeleteUser removes a user and reports the outcome as a structured result
// rather than an error: the delete (assignments plus user row) runs in a
// single store operation and the result reflects whether a row was removed.
func (s *Service) DeleteUser(ctx context.Context, id string) (DeleteResult, error) {
	deleted, err := s.store.Users(ctx).Delete(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	s.invalidatePrincipal(id)
	if !deleted {
		return DeleteResult{Success: false, Messages: failedDeletion, ID: id}, nil
	}
	return DeleteResult{Success: true, Messages: successfulDeletion, ID: id}, nil
}

// AddRoleToUser assigns a role to a user (atomic add-to-set).
func (s *Service) AddRoleToUser(ctx context.Context, userID, roleID string) (*User, error) {
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.store.Users(ctx).AddRole(ctx, userID, roleID); err != nil {
		return nil, err
	}
	s.invalidatePrincipal(userID)
	return s.store.Users(ctx).Find(ctx, userID)
}

// ReplaceUserRoles replaces a user's full role set. Every user keeps at least
// one role and a primary role that is a member of its set: an empty set is
// rejected, and a primary no longer present is reassigned to the first role
// of the new set.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) (*User, error) {
	cleaned := dedupeStrings(roleIDs)
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: user must hold at least one role", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	for _, roleID := range cleaned {
		if _, err := roles.Find(ctx, roleID); err != nil {
			return nil, err
		}
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	primary := user.PrimaryRoleID
	if !containsString(cleaned, primary) {
		primary = cleaned[0]
	}
	if err := s.store.Users(ctx).SetRoles(ctx, userID, cleaned, primary); err != nil {
		return nil, err
	}
	s.invalidatePrincipal(userID)
	return s.store.Users(ctx).Find(ctx, userID)
}

// CreateRole creates a role with the given permission membership. A duplicate
// name fails with ErrConflict.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissionNames []string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	rolesStore := s.store.Roles(ctx)
	if err := rolesStore.Create(ctx, role); err != nil {
		return nil, err
	}
	if perms := dedupeStrings(permissionNames); len(perms) > 0 {
		if err := rolesStore.SetPermissions(ctx, role.ID, perms); err != nil {
			return nil, err
		}
	}
	return role, nil
}

// FindRoleByName returns the role with the given case-sensitive name, or
// ErrNotFound.
func (s *Service) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.store.Roles(ctx).FindByName(ctx, name)
}

// FindRole returns a role by id.
func (s *Service) FindRole(ctx context.Context, id string) (*Role, error) {
	return s.store.Roles(ctx).Find(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.Roles(ctx).List(ctx)
}

// UpdateRole updates the role description. Names are immutable after
// creation.
func (s *Service) UpdateRole(ctx context.Context, id, description string) (*Role, error) {
	role, err := s.store.Roles(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Description = strings.TrimSpace(description)
	if err := s.store.Roles(ctx).Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role. Deleting a role still assigned to users fails
// with ErrConflict at the store layer so no user is left without a valid
// primary role.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	if err := s.store.Roles(ctx).Delete(ctx, id); err != nil {
		return err
	}
	s.flushPrincipals()
	return nil
}

// AddPermissionToRole grants a single permission to a role. The operation is
// an atomic add-to-set: two concurrent grants from different admins both
// land.
func (s *Service) AddPermissionToRole(ctx context.Context, roleID, permissionName string) error {
	if _, err := s.store.Permissions(ctx).FindByName(ctx, permissionName); err != nil {
		return err
	}
	if err := s.store.Roles(ctx).AddPermission(ctx, roleID, permissionName); err != nil {
		return err
	}
	s.flushPrincipals()
	return nil
}

// SetRolePermissions replaces a role's permission membership.
func (s *Service) SetRolePermissions(ctx context.Context, roleID string, permissionNames []string) error {
	if err := s.store.Roles(ctx).SetPermissions(ctx, roleID, dedupeStrings(permissionNames)); err != nil {
		return err
	}
	s.flushPrincipals()
	return nil
}

// RolePermissions lists the permissions granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID string) ([]Permission, error) {
	if _, err := s.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return nil, err
	}
	return s.store.Roles(ctx).PermissionsFor(ctx, roleID)
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions(ctx).List(ctx)
}

// CreatePermission creates a catalog entry through the admin path: unlike
// seeding, a duplicate name fails with ErrConflict instead of returning the
// existing row.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	perm := &Permission{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return nil, err
	}
	return perm, nil
}

func (s *Service) resolveRole(ctx context.Context, ref string) (*Role, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: role reference is required", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	role, err := roles.Find(ctx, ref)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return roles.FindByName(ctx, ref)
}

func (s *Service) invalidatePrincipal(userID string) {
	if s.principals != nil {
		s.principals.Delete(userID)
	}
}

// flushPrincipals drops every cached principal. Used after role or
// permission membership changes, which affect an unknown set of users.
func (s *Service) flushPrincipals() {
	if s.principals != nil {
		s.principals.Flush()
	}
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
