package gabriel

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is any registered account
	RoleUser UserRole = "user"
	// RoleAdmin can moderate content and manage users
	RoleAdmin UserRole = "admin"
)

var roleHierarchy = map[UserRole]int{
	RoleUser:  0,
	RoleAdmin: 1,
}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r string) bool {
	_, ok := roleHierarchy[r]
	return ok
}

// RoleIsAtLeast checks if role meets the minimum required level
func RoleIsAtLeast(role, minRole string) bool {
	currentLevel, exists := roleHierarchy[role]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{RoleUser, RoleAdmin}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	return roleStr, IsValidRole(roleStr)
}
