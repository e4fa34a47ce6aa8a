package models

// Role identifies what a session may do.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Session is the authenticated operator context handed to every privileged
// operation.
type Session struct {
	Operator string
	Role     Role
}

// IsAdmin reports whether the session may run privileged operations.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Name returns the operator name recorded in audit trails.
func (s Session) Name() string {
	if s.Operator == "" {
		return "unknown"
	}
	return s.Operator
}
