package auth

import "time"

// User is an account identified by email. The email is immutable after
// creation in the sense that it is the unique lookup key for authentication;
// the password is stored only as a bcrypt hash.
type User struct {
	ID            string    `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	RoleIDs       []string  `json:"role_ids"`
	PrimaryRoleID string    `json:"primary_role_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Role groups permissions under a unique, case-sensitive name.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an immutable named capability. Rows are only created during
// catalog seeding or explicit admin creation, never mutated.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeleteResult reports the outcome of a destructive operation explicitly
// instead of relying on an error alone.
type DeleteResult struct {
	Success  bool   `json:"success"`
	Messages string `json:"messages"`
	ID       string `json:"id"`
}
