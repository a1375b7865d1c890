package model

// Permission represents a string code for a specific proctor action.
type Permission string

const (
	// PermissionQuizzesWrite allows creating and publishing quizzes.
	PermissionQuizzesWrite Permission = "quizzes:write"

	// PermissionQuizzesRead allows viewing quizzes and attempt results.
	PermissionQuizzesRead Permission = "quizzes:read"

	// PermissionMonitorRead allows attaching to the live violation monitor.
	PermissionMonitorRead Permission = "monitor:read"
)

// AllPermissions lists every permission code, used when minting proctor tokens.
var AllPermissions = []Permission{
	PermissionQuizzesWrite,
	PermissionQuizzesRead,
	PermissionMonitorRead,
}

// PermissionCodes converts permissions to their string codes.
func PermissionCodes(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
