package auth

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Baseline role names seeded at bootstrap.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleOfficer    = "OFFICER"
	RoleManager    = "MANAGER"
	RoleDeputy     = "DEPUTY"
	RoleUser       = "USER"
)

// fullCatalog is the permission list shorthand accepted in taxonomy files.
const fullCatalog = "*"

// RoleGrant maps a role name to the permission names it carries.
type RoleGrant struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Permissions []string `yaml:"permissions"`
}

// Taxonomy is the role-to-permission mapping seeded at bootstrap. It is
// configuration data, versioned alongside the deployment, not code.
type Taxonomy struct {
	Roles []RoleGrant `yaml:"roles"`
}

// DefaultTaxonomy returns the canonical six-role taxonomy. SUPER_ADMIN holds
// the full catalog; ADMIN manages users and roles and may create files;
// OFFICER, MANAGER and DEPUTY are read-only over users; USER carries no
// permissions and is the default for self-registration.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{Roles: []RoleGrant{
		{
			Name:        RoleSuperAdmin,
			Description: "Full access to every resource",
			Permissions: []string{fullCatalog},
		},
		{
			Name:        RoleAdmin,
			Description: "User and role administration",
			Permissions: []string{
				PermCreateUser, PermReadUser, PermUpdateUser, PermDeleteUser,
				PermCreateRole, PermReadRole, PermUpdateRole, PermDeleteRole,
				PermCreateFiles,
			},
		},
		{
			Name:        RoleOfficer,
			Description: "Read-only over users",
			Permissions: []string{PermReadUser},
		},
		{
			Name:        RoleManager,
			Description: "Read-only over users",
			Permissions: []string{PermReadUser},
		},
		{
			Name:        RoleDeputy,
			Description: "Read-only over users",
			Permissions: []string{PermReadUser},
		},
		{
			Name:        RoleUser,
			Description: "Authenticated baseline, no administrative permissions",
			Permissions: nil,
		},
	}}
}

// LoadTaxonomy reads a taxonomy from a YAML file. An empty path returns the
// compiled-in default.
func LoadTaxonomy(path string) (Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("read taxonomy: %w", err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Taxonomy{}, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return t, nil
}

// Validate checks role name uniqueness and that every permission name either
// belongs to the builtin catalog or is the full-catalog shorthand.
func (t Taxonomy) Validate() error {
	if len(t.Roles) == 0 {
		return fmt.Errorf("%w: taxonomy has no roles", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(t.Roles))
	for _, grant := range t.Roles {
		name := strings.TrimSpace(grant.Name)
		if name == "" {
			return fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate role %s", ErrInvalidInput, name)
		}
		seen[name] = struct{}{}
		for _, perm := range grant.Permissions {
			if perm == fullCatalog {
				continue
			}
			if !KnownPermission(perm) {
				return fmt.Errorf("%w: role %s references unknown permission %s", ErrInvalidInput, name, perm)
			}
		}
	}
	return nil
}

// permissionNames expands the full-catalog shorthand into concrete names.
func (g RoleGrant) permissionNames() []string {
	var out []string
	seen := make(map[string]struct{}, len(g.Permissions))
	for _, perm := range g.Permissions {
		if perm == fullCatalog {
			for _, p := range BuiltinPermissions {
				if _, ok := seen[p.Name]; ok {
					continue
				}
				seen[p.Name] = struct{}{}
				out = append(out, p.Name)
			}
			continue
		}
		if _, ok := seen[perm]; ok {
			continue
		}
		seen[perm] = struct{}{}
		out = append(out, perm)
	}
	return out
}
