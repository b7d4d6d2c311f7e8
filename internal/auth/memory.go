package auth

import (
	"context"
	"sync"
	"time"

	"custodia/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store used by tests and the dev mode of the
// API binary. All uniqueness checks mirror the Postgres constraints.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]*User
	emails    map[string]string
	roles     map[string]*Role
	roleNames map[string]string
	perms     map[string]Permission
	permOrder []string
	rolePerms map[string]map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*User),
		emails:    make(map[string]string),
		roles:     make(map[string]*Role),
		roleNames: make(map[string]string),
		perms:     make(map[string]Permission),
		rolePerms: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore             { return (*memUserStore)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore             { return (*memRoleStore)(m) }
func (m *MemoryStore) Permissions(context.Context) PermissionStore { return (*memPermStore)(m) }

// User store ---------------------------------------------------------------

type memUserStore MemoryStore

func (m *memUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, ok := m.emails[u.Email]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = cloneUser(u)
	m.emails[u.Email] = u.ID
	return nil
}

func (m *memUserStore) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *memUserStore) List(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, cloneUser(u))
	}
	return out, nil
}

func (m *memUserStore) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	updated := cloneUser(u)
	updated.Email = existing.Email
	updated.CreatedAt = existing.CreatedAt
	updated.RoleIDs = append([]string(nil), existing.RoleIDs...)
	updated.PrimaryRoleID = existing.PrimaryRoleID
	updated.UpdatedAt = time.Now().UTC()
	m.users[u.ID] = updated
	return nil
}

func (m *memUserStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	delete(m.emails, u.Email)
	delete(m.users, id)
	return true, nil
}

func (m *memUserStore) SetRoles(_ context.Context, userID string, roleIDs []string, primaryRoleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	for _, roleID := range roleIDs {
		if _, ok := m.roles[roleID]; !ok {
			return ErrNotFound
		}
	}
	u.RoleIDs = append([]string(nil), roleIDs...)
	u.PrimaryRoleID = primaryRoleID
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memUserStore) AddRole(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	for _, existing := range u.RoleIDs {
		if existing == roleID {
			return nil
		}
	}
	u.RoleIDs = append(u.RoleIDs, roleID)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Role store ---------------------------------------------------------------

type memRoleStore MemoryStore

func (m *memRoleStore) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	if _, ok := m.roleNames[role.Name]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	m.roles[role.ID] = cloneRole(role)
	m.roleNames[role.Name] = role.ID
	m.rolePerms[role.ID] = make(map[string]struct{})
	return nil
}

func (m *memRoleStore) Find(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRole(role), nil
}

func (m *memRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.roleNames[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRole(m.roles[id]), nil
}

func (m *memRoleStore) List(_ context.Context) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		out = append(out, cloneRole(role))
	}
	return out, nil
}

func (m *memRoleStore) Update(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.roles[role.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Description = role.Description
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memRoleStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		for _, roleID := range u.RoleIDs {
			if roleID == id {
				return ErrConflict
			}
		}
	}
	delete(m.roleNames, role.Name)
	delete(m.roles, id)
	delete(m.rolePerms, id)
	return nil
}

func (m *memRoleStore) ForUser(_ context.Context, userID string) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Role, 0, len(u.RoleIDs))
	for _, roleID := range u.RoleIDs {
		if role, ok := m.roles[roleID]; ok {
			out = append(out, *cloneRole(role))
		}
	}
	return out, nil
}

func (m *memRoleStore) AddPermission(_ context.Context, roleID, permissionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	perms, ok := m.rolePerms[roleID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.perms[permissionName]; !ok {
		return ErrNotFound
	}
	perms[permissionName] = struct{}{}
	return nil
}

func (m *memRoleStore) SetPermissions(_ context.Context, roleID string, permissionNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rolePerms[roleID]; !ok {
		return ErrNotFound
	}
	next := make(map[string]struct{}, len(permissionNames))
	for _, name := range permissionNames {
		if _, ok := m.perms[name]; !ok {
			return ErrNotFound
		}
		next[name] = struct{}{}
	}
	m.rolePerms[roleID] = next
	return nil
}

func (m *memRoleStore) PermissionsFor(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.rolePerms[roleID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []Permission
	for _, name := range m.permOrder {
		if _, ok := members[name]; ok {
			out = append(out, m.perms[name])
		}
	}
	return out, nil
}

// Permission store ---------------------------------------------------------

type memPermStore MemoryStore

func (m *memPermStore) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.perms[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = ids.New()
		}
		p.CreatedAt = time.Now().UTC()
		m.perms[p.Name] = p
		m.permOrder = append(m.permOrder, p.Name)
	}
	return nil
}

func (m *memPermStore) Create(_ context.Context, perm *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[perm.Name]; ok {
		return ErrConflict
	}
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	perm.CreatedAt = time.Now().UTC()
	m.perms[perm.Name] = *perm
	m.permOrder = append(m.permOrder, perm.Name)
	return nil
}

func (m *memPermStore) List(_ context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.permOrder))
	for _, name := range m.permOrder {
		out = append(out, m.perms[name])
	}
	return out, nil
}

func (m *memPermStore) FindByName(_ context.Context, name string) (*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.perms[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func cloneUser(u *User) *User {
	out := *u
	out.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &out
}

func cloneRole(r *Role) *Role {
	out := *r
	return &out
}
