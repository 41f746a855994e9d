// Package guard provides the route predicates consulted before entering a
// protected view.
//
// The base Auth guard is the only guard that performs I/O: with no
// credential in memory it attempts exactly one session restore. Role guards
// are synchronous and assume Auth ran earlier in the route tree; an
// unauthenticated caller reaching a role guard is treated the same as a
// wrong role and redirected home, not to login.
package guard

import (
	"context"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Redirect targets produced by the guards.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Decision is the outcome of a guard check: either allow, or a redirect
// directive for the router.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Allow is the passing decision.
var Allow = Decision{Allowed: true}

// Redirect produces a denying decision pointing at path.
func Redirect(path string) Decision {
	return Decision{RedirectTo: path}
}

// Restorer attempts to restore a session from the refresh cookie.
type Restorer interface {
	TryRestoreSession(ctx context.Context) bool
}

// Auth is the base authentication guard. An authenticated session passes
// synchronously with no network calls; otherwise one restore attempt is
// made, and the guard redirects to the login view iff it fails.
func Auth(ctx context.Context, s taskdesk.SessionReader, r Restorer) Decision {
	if s.IsAuthenticated() {
		return Allow
	}
	if r != nil && r.TryRestoreSession(ctx) {
		return Allow
	}
	return Redirect(LoginPath)
}

// Role passes iff the session is authenticated and carries one of the given
// roles. It never attempts a restore.
func Role(s taskdesk.SessionReader, roles ...taskdesk.Role) Decision {
	if s.IsAuthenticated() {
		for _, role := range roles {
			if s.HasRole(role) {
				return Allow
			}
		}
	}
	return Redirect(HomePath)
}

// Manager passes for managers only.
func Manager(s taskdesk.SessionReader) Decision {
	return Role(s, taskdesk.RoleManager)
}

// Engineer passes for engineers only.
func Engineer(s taskdesk.SessionReader) Decision {
	return Role(s, taskdesk.RoleEngineer)
}

// ManagerOrEngineer passes for managers and engineers.
func ManagerOrEngineer(s taskdesk.SessionReader) Decision {
	return Role(s, taskdesk.RoleManager, taskdesk.RoleEngineer)
}

// ClientRole passes for client-portal users only.
func ClientRole(s taskdesk.SessionReader) Decision {
	return Role(s, taskdesk.RoleClient)
}

// Superadmin passes for superadmins only.
func Superadmin(s taskdesk.SessionReader) Decision {
	return Role(s, taskdesk.RoleSuperadmin)
}
