package auth

import "sort"

// Principal is an authenticated user with resolved roles and the union of
// permissions across those roles.
type Principal struct {
	User        *User
	Roles       []Role
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal holds the named permission.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// HasAnyPermission reports whether the principal holds at least one of the
// named permissions. An empty list is satisfied by any principal.
func (p Principal) HasAnyPermission(names ...string) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if _, ok := p.Permissions[name]; ok {
			return true
		}
	}
	return false
}

// PermissionList returns the sorted permission names.
func (p Principal) PermissionList() []string {
	out := make([]string, 0, len(p.Permissions))
	for name := range p.Permissions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
