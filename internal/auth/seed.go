package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"custodia/internal/ids"
)

// BootstrapConfig drives first-run seeding: the role taxonomy and the default
// privileged account.
type BootstrapConfig struct {
	Taxonomy Taxonomy

	AdminFirstName string
	AdminLastName  string
	AdminEmail     string
	AdminPassword  string
	AdminPhone     string
	AdminAddress   string
}

// Bootstrap seeds the permission catalog, the baseline roles and the default
// SUPER_ADMIN account. The whole pass is idempotent and safe under
// concurrent first boot across replicas: creation relies on store-level
// unique constraints, and a conflict from a racing replica is treated as
// success.
func (s *Service) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	taxonomy := cfg.Taxonomy
	if len(taxonomy.Roles) == 0 {
		taxonomy = DefaultTaxonomy()
	}
	if err := taxonomy.Validate(); err != nil {
		return err
	}

	if err := s.EnsureBuiltins(ctx); err != nil {
		return fmt.Errorf("seed permissions: %w", err)
	}
	for _, grant := range taxonomy.Roles {
		if err := s.ensureRole(ctx, grant); err != nil {
			return fmt.Errorf("seed role %s: %w", grant.Name, err)
		}
	}
	if strings.TrimSpace(cfg.AdminEmail) != "" {
		if err := s.ensureAdminUser(ctx, cfg); err != nil {
			return fmt.Errorf("seed admin user: %w", err)
		}
	}
	return nil
}

// EnsureBuiltins ensures every catalog permission exists (get-or-create keyed
// by unique name).
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	perms := make([]Permission, len(BuiltinPermissions))
	for i, p := range BuiltinPermissions {
		p.ID = ids.New()
		perms[i] = p
	}
	return s.store.Permissions(ctx).Ensure(ctx, perms)
}

// ensureRole is get-or-create by name. Permission membership is written only
// on first creation so later admin edits to a role survive restarts.
func (s *Service) ensureRole(ctx context.Context, grant RoleGrant) error {
	roles := s.store.Roles(ctx)
	if _, err := roles.FindByName(ctx, grant.Name); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	role := &Role{
		ID:          ids.New(),
		Name:        grant.Name,
		Description: grant.Description,
	}
	if err := roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			// A racing replica created it first.
			return nil
		}
		return err
	}
	if perms := grant.permissionNames(); len(perms) > 0 {
		return roles.SetPermissions(ctx, role.ID, perms)
	}
	return nil
}

func (s *Service) ensureAdminUser(ctx context.Context, cfg BootstrapConfig) error {
	email := strings.TrimSpace(strings.ToLower(cfg.AdminEmail))
	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if strings.TrimSpace(cfg.AdminPassword) == "" {
		return fmt.Errorf("%w: admin password is required", ErrInvalidInput)
	}
	_, err := s.Register(ctx, RegisterParams{
		FirstName: cfg.AdminFirstName,
		LastName:  cfg.AdminLastName,
		Email:     email,
		Password:  cfg.AdminPassword,
		Phone:     cfg.AdminPhone,
		Address:   cfg.AdminAddress,
	}, RoleSuperAdmin)
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}
