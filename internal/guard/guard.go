// Package guard is the render-blocking authorization gate. It reads
// session state, never writes it: given a page's access level it decides
// whether the page may render, must wait, or must redirect elsewhere.
package guard

import (
	"sync"

	"github.com/pmarinho/gatehouse/internal/session"
)

// Access is the level a page subtree declares.
type Access string

const (
	// AccessPublic pages (login, signup) are for signed-out visitors;
	// an authenticated session is forwarded to its landing page.
	AccessPublic Access = "public"

	// AccessAuthenticated pages require a session with the
	// non-privileged role. Admins are forwarded to their own area.
	AccessAuthenticated Access = "authenticated"

	// AccessAdmin pages require the privileged role.
	AccessAdmin Access = "admin"
)

// Decision is the gate outcome.
type Decision int

const (
	// Pending means hydration has not settled; render a placeholder and
	// do not navigate.
	Pending Decision = iota

	// Allowed means the subtree may render.
	Allowed

	// Denied means the subtree must not render. Verdict.Redirect says
	// where to send the visitor; empty means render nothing and stay.
	Denied
)

// Landing pages per role, and the sign-in page. These are the guard's
// targets; the edge gate and session store have their own.
const (
	userLanding  = "/home"
	adminLanding = "/admin/home"
	loginPath    = "/login"
)

// Verdict is a Decision plus the redirect it implies, if any.
type Verdict struct {
	Decision Decision
	Redirect string
}

// Evaluate is the pure decision function. hydrated=false always yields
// Pending. An access level outside the three known ones yields Denied
// with no redirect: misconfiguration renders nothing rather than leaking
// a page or bouncing the visitor somewhere arbitrary.
func Evaluate(access Access, hydrated bool, s session.Session) Verdict {
	if !hydrated {
		return Verdict{Decision: Pending}
	}

	admin := s.User != nil && s.User.Role == session.RoleAdmin

	switch access {
	case AccessPublic:
		if !s.Authenticated {
			return Verdict{Decision: Allowed}
		}
		if admin {
			return Verdict{Decision: Denied, Redirect: adminLanding}
		}
		return Verdict{Decision: Denied, Redirect: userLanding}

	case AccessAuthenticated:
		if !s.Authenticated {
			return Verdict{Decision: Denied, Redirect: loginPath}
		}
		// A session without a profile counts as non-privileged.
		if admin {
			return Verdict{Decision: Denied, Redirect: adminLanding}
		}
		return Verdict{Decision: Allowed}

	case AccessAdmin:
		if s.Authenticated && admin {
			return Verdict{Decision: Allowed}
		}
		return Verdict{Decision: Denied, Redirect: userLanding}
	}

	return Verdict{Decision: Denied}
}

// SessionSource is the slice of the session store the guard reads.
type SessionSource interface {
	State() session.Session
	Hydrated() bool
}

// Guard wraps Evaluate with a navigator and makes re-evaluation
// idempotent: a denied verdict issues its redirect once, and repeated
// checks against unchanged state stay silent until the verdict changes.
type Guard struct {
	source SessionSource
	nav    session.Navigator

	mu     sync.Mutex
	issued string
}

// New creates a guard over the given session source.
func New(source SessionSource, nav session.Navigator) *Guard {
	return &Guard{source: source, nav: nav}
}

// Check evaluates access against the current session state and performs
// the redirect a denial calls for. Redirects use Replace so the denied
// page never lands in history.
func (g *Guard) Check(access Access) Verdict {
	v := Evaluate(access, g.source.Hydrated(), g.source.State())

	g.mu.Lock()
	defer g.mu.Unlock()

	if v.Redirect == "" {
		g.issued = ""
		return v
	}
	if v.Redirect != g.issued {
		g.issued = v.Redirect
		g.nav.Replace(v.Redirect)
	}
	return v
}
