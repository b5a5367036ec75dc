package rbac

// Role names. Keep these stable; the CRM backend issues them in tokens.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCaller  = "caller"
	RoleViewer  = "viewer"
)

// CallingRoles may drive a session. Viewers may open one read-only.
var CallingRoles = []string{RoleOwner, RoleManager, RoleCaller}

func IsKnownRole(role string) bool {
	switch role {
	case RoleOwner, RoleManager, RoleCaller, RoleViewer:
		return true
	default:
		return false
	}
}

// IsReadOnly reports whether sessions opened by role are display-only.
func IsReadOnly(role string) bool { return role == RoleViewer }
