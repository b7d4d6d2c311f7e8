package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newBootstrappedService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	base := []ServiceOption{WithSecret([]byte("service-test-secret"))}
	svc, err := NewService(NewMemoryStore(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Bootstrap(context.Background(), BootstrapConfig{
		AdminEmail:    "root@example.com",
		AdminPassword: "root-password",
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		FirstName: "Dana",
		LastName:  "Kim",
		Email:     "Dana@Example.com",
		Password:  "s3cret-pass",
	}, RoleUser)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Email != "dana@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PrimaryRoleID == "" || len(user.RoleIDs) != 1 || user.RoleIDs[0] != user.PrimaryRoleID {
		t.Fatalf("primary role invariant violated: %+v", user)
	}

	if _, err := svc.Authenticate(ctx, "dana@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "dana@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown email and bad password are indistinguishable.
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	params := RegisterParams{Email: "dup@example.com", Password: "pass-1234"}
	if _, err := svc.Register(ctx, params, RoleUser); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(ctx, params, RoleUser); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRegisterUnknownRole(t *testing.T) {
	svc := newBootstrappedService(t)
	_, err := svc.Register(context.Background(), RegisterParams{
		Email:    "x@example.com",
		Password: "pass-1234",
	}, "NO_SUCH_ROLE")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateUserTypeMapping(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	admin, err := svc.CreateUser(ctx, CreateUserParams{
		Email: "a@example.com", Password: "pass-1234", UserType: "admin",
	})
	if err != nil {
		t.Fatalf("CreateUser admin failed: %v", err)
	}
	adminRole, err := svc.FindRoleByName(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("find ADMIN: %v", err)
	}
	if admin.PrimaryRoleID != adminRole.ID {
		t.Fatalf("expected ADMIN primary role, got %q", admin.PrimaryRoleID)
	}

	plain, err := svc.CreateUser(ctx, CreateUserParams{
		Email: "b@example.com", Password: "pass-1234",
	})
	if err != nil {
		t.Fatalf("CreateUser default failed: %v", err)
	}
	userRole, err := svc.FindRoleByName(ctx, RoleUser)
	if err != nil {
		t.Fatalf("find USER: %v", err)
	}
	if plain.PrimaryRoleID != userRole.ID {
		t.Fatalf("expected USER primary role, got %q", plain.PrimaryRoleID)
	}

	if _, err := svc.CreateUser(ctx, CreateUserParams{
		Email: "c@example.com", Password: "pass-1234", UserType: "superuser",
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad user type, got %v", err)
	}
}

func TestPrincipalPermissionUnion(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	filesRole, err := svc.CreateRole(ctx, "FILE_CLERK", "", []string{PermReadFiles, PermCreateFiles})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	user, err := svc.Register(ctx, RegisterParams{
		Email: "clerk@example.com", Password: "pass-1234",
	}, RoleOfficer)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.AddRoleToUser(ctx, user.ID, filesRole.ID); err != nil {
		t.Fatalf("add role: %v", err)
	}

	principal, err := svc.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	for _, perm := range []string{PermReadUser, PermReadFiles, PermCreateFiles} {
		if !principal.HasPermission(perm) {
			t.Fatalf("expected permission %s in union, got %v", perm, principal.PermissionList())
		}
	}
	if principal.HasPermission(PermDeleteUser) {
		t.Fatal("unexpected DELETE_USER in union")
	}
}

func TestDeleteUserResult(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		Email: "gone@example.com", Password: "pass-1234",
	}, RoleUser)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := svc.DeleteUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !result.Success || result.ID != user.ID {
		t.Fatalf("unexpected result: %+v", result)
	}

	result, err = svc.DeleteUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failed deletion for missing user: %+v", result)
	}
}

func TestReplaceUserRoles(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		Email: "roles@example.com", Password: "pass-1234",
	}, RoleOfficer)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	manager, err := svc.FindRoleByName(ctx, RoleManager)
	if err != nil {
		t.Fatalf("find MANAGER: %v", err)
	}

	updated, err := svc.ReplaceUserRoles(ctx, user.ID, []string{manager.ID})
	if err != nil {
		t.Fatalf("replace roles: %v", err)
	}
	if updated.PrimaryRoleID != manager.ID {
		t.Fatalf("primary not reassigned: %q", updated.PrimaryRoleID)
	}

	if _, err := svc.ReplaceUserRoles(ctx, user.ID, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty set, got %v", err)
	}
}

func TestDeleteRoleStillAssigned(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	officer, err := svc.FindRoleByName(ctx, RoleOfficer)
	if err != nil {
		t.Fatalf("find OFFICER: %v", err)
	}
	if _, err := svc.Register(ctx, RegisterParams{
		Email: "holder@example.com", Password: "pass-1234",
	}, RoleOfficer); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.DeleteRole(ctx, officer.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAddPermissionToRoleUnknownPermission(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	role, err := svc.FindRoleByName(ctx, RoleUser)
	if err != nil {
		t.Fatalf("find USER: %v", err)
	}
	if err := svc.AddPermissionToRole(ctx, role.ID, "NOT_A_PERMISSION"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		Email: "req@example.com", Password: "pass-1234",
	}, RoleOfficer)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Require(ctx, user.ID, PermReadUser); err != nil {
		t.Fatalf("Require READ_USER failed: %v", err)
	}
	if _, err := svc.Require(ctx, user.ID, PermDeleteUser); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	svc := newBootstrappedService(t)
	ctx := context.Background()

	roles, err := svc.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	firstCount := len(roles)

	// Admin edits a role, then the service restarts and bootstraps again.
	officer, err := svc.FindRoleByName(ctx, RoleOfficer)
	if err != nil {
		t.Fatalf("find OFFICER: %v", err)
	}
	if err := svc.SetRolePermissions(ctx, officer.ID, []string{PermReadUser, PermReadFiles}); err != nil {
		t.Fatalf("set permissions: %v", err)
	}

	if err := svc.Bootstrap(ctx, BootstrapConfig{
		AdminEmail:    "root@example.com",
		AdminPassword: "root-password",
	}); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	roles, err = svc.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != firstCount {
		t.Fatalf("bootstrap not idempotent: %d -> %d roles", firstCount, len(roles))
	}
	perms, err := svc.RolePermissions(ctx, officer.ID)
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("admin edit did not survive re-bootstrap: %v", perms)
	}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	admins := 0
	for _, u := range users {
		if u.Email == "root@example.com" {
			admins++
		}
	}
	if admins != 1 {
		t.Fatalf("expected exactly one seeded admin, got %d", admins)
	}
}

func TestPrincipalCacheInvalidation(t *testing.T) {
	svc := newBootstrappedService(t, WithPrincipalCacheTTL(time.Minute))
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterParams{
		Email: "cache@example.com", Password: "pass-1234",
	}, RoleUser)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	principal, err := svc.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("principal: %v", err)
	}
	if principal.HasPermission(PermReadUser) {
		t.Fatal("USER should not hold READ_USER")
	}

	officer, err := svc.FindRoleByName(ctx, RoleOfficer)
	if err != nil {
		t.Fatalf("find OFFICER: %v", err)
	}
	if _, err := svc.AddRoleToUser(ctx, user.ID, officer.ID); err != nil {
		t.Fatalf("add role: %v", err)
	}

	// The mutation invalidates the cached principal eagerly.
	principal, err = svc.Principal(ctx, user.ID)
	if err != nil {
		t.Fatalf("principal after mutation: %v", err)
	}
	if !principal.HasPermission(PermReadUser) {
		t.Fatal("expected READ_USER after role grant")
	}
}
