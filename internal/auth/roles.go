package auth

// Reporter role constants.
const (
	RoleViewer    = "viewer"
	RoleModerator = "moderator"
)

// AllRoles returns all valid reporter roles.
func AllRoles() []string {
	return []string{RoleViewer, RoleModerator}
}

// ModeratorRoles returns roles that can see appeal queues.
func ModeratorRoles() []string {
	return []string{RoleModerator}
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}
