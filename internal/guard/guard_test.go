package guard

import (
	"testing"

	"github.com/pmarinho/gatehouse/internal/session"
)

func userSession(role session.Role) session.Session {
	return session.Session{
		User:          &session.User{ID: "u-1", Role: role},
		Authenticated: true,
	}
}

func TestEvaluate_PendingUntilHydrated(t *testing.T) {
	for _, access := range []Access{AccessPublic, AccessAuthenticated, AccessAdmin} {
		v := Evaluate(access, false, session.Session{})
		if v.Decision != Pending || v.Redirect != "" {
			t.Errorf("%s before hydration: %+v, want Pending with no redirect", access, v)
		}
	}
}

func TestEvaluate_Matrix(t *testing.T) {
	anon := session.Session{}
	tokenOnly := session.Session{Authenticated: true}

	cases := []struct {
		name         string
		access       Access
		sess         session.Session
		wantDecision Decision
		wantRedirect string
	}{
		{"public anon allowed", AccessPublic, anon, Allowed, ""},
		{"public user forwarded", AccessPublic, userSession(session.RoleUser), Denied, "/home"},
		{"public admin forwarded", AccessPublic, userSession(session.RoleAdmin), Denied, "/admin/home"},
		{"public token-only forwarded", AccessPublic, tokenOnly, Denied, "/home"},

		{"authenticated anon to login", AccessAuthenticated, anon, Denied, "/login"},
		{"authenticated user allowed", AccessAuthenticated, userSession(session.RoleUser), Allowed, ""},
		{"authenticated admin forwarded", AccessAuthenticated, userSession(session.RoleAdmin), Denied, "/admin/home"},
		{"authenticated token-only allowed", AccessAuthenticated, tokenOnly, Allowed, ""},

		{"admin admin allowed", AccessAdmin, userSession(session.RoleAdmin), Allowed, ""},
		{"admin user forwarded", AccessAdmin, userSession(session.RoleUser), Denied, "/home"},
		{"admin anon forwarded", AccessAdmin, anon, Denied, "/home"},
		{"admin token-only forwarded", AccessAdmin, tokenOnly, Denied, "/home"},

		{"unknown access renders nothing", Access("editor"), userSession(session.RoleUser), Denied, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.access, true, tc.sess)
			if v.Decision != tc.wantDecision {
				t.Errorf("decision = %v, want %v", v.Decision, tc.wantDecision)
			}
			if v.Redirect != tc.wantRedirect {
				t.Errorf("redirect = %q, want %q", v.Redirect, tc.wantRedirect)
			}
		})
	}
}

type stubSource struct {
	sess     session.Session
	hydrated bool
}

func (s *stubSource) State() session.Session { return s.sess }
func (s *stubSource) Hydrated() bool         { return s.hydrated }

type recordingNav struct {
	replaced []string
	assigned []string
}

func (n *recordingNav) Assign(path string)  { n.assigned = append(n.assigned, path) }
func (n *recordingNav) Replace(path string) { n.replaced = append(n.replaced, path) }

func TestGuard_RedirectIssuedOncePerVerdict(t *testing.T) {
	source := &stubSource{hydrated: true}
	nav := &recordingNav{}
	g := New(source, nav)

	// Re-checking an unchanged denial must not re-issue the redirect.
	for range 3 {
		if v := g.Check(AccessAuthenticated); v.Decision != Denied {
			t.Fatalf("decision = %v, want Denied", v.Decision)
		}
	}
	if len(nav.replaced) != 1 || nav.replaced[0] != "/login" {
		t.Fatalf("replaced = %v, want exactly one /login", nav.replaced)
	}

	// State change resets the latch: sign in, then land on a public
	// page and get forwarded again.
	source.sess = userSession(session.RoleUser)
	if v := g.Check(AccessAuthenticated); v.Decision != Allowed {
		t.Fatalf("decision after login = %v, want Allowed", v.Decision)
	}
	g.Check(AccessPublic)
	g.Check(AccessPublic)

	want := []string{"/login", "/home"}
	if len(nav.replaced) != len(want) {
		t.Fatalf("replaced = %v, want %v", nav.replaced, want)
	}
	for i := range want {
		if nav.replaced[i] != want[i] {
			t.Errorf("replaced[%d] = %q, want %q", i, nav.replaced[i], want[i])
		}
	}
	if len(nav.assigned) != 0 {
		t.Errorf("guard must use history-replacing navigation, got assigns %v", nav.assigned)
	}
}

func TestGuard_PendingPerformsNoNavigation(t *testing.T) {
	source := &stubSource{hydrated: false}
	nav := &recordingNav{}
	g := New(source, nav)

	if v := g.Check(AccessAdmin); v.Decision != Pending {
		t.Fatalf("decision = %v, want Pending", v.Decision)
	}
	if len(nav.replaced)+len(nav.assigned) != 0 {
		t.Error("pending guard must not navigate")
	}
}
