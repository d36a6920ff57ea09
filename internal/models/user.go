package models

import "time"

// Role gates what an authenticated user may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleAuthor Role = "author"
)

// Valid reports whether r names a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleEditor || r == RoleAuthor }

// CanEdit reports whether the role may mutate content.
func (r Role) CanEdit() bool { return r == RoleAdmin || r == RoleEditor }

// User is a stored account. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the client-facing projection of User.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the password hash.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}
