package identity

import "time"

// Roles understood by the HTTP edge.
const (
	RoleCustomer    = "customer"
	RoleLoanOfficer = "loan_officer"
	RoleAdmin       = "admin"
)

// IsStaff reports whether role may act on other users' accounts and loans.
func IsStaff(role string) bool {
	return role == RoleLoanOfficer || role == RoleAdmin
}

func validRole(role string) bool {
	return role == RoleCustomer || IsStaff(role)
}

// User represents a registered bank customer or staff member.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash []byte
	Role         string
	IsActive     bool
	TokenVersion int
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Registration is the input to Register.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
	Role      string
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
