package domain

// Role is the permission level carried by an API token.
type Role string

// Roles.
const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleAdmin:  2,
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// HasPermission reports whether r is at least min.
func (r Role) HasPermission(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}
