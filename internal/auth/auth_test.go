package auth

import (
	"context"
	"errors"
	"testing"
)

func TestPolicy_Authorize(t *testing.T) {
	pol := DefaultPolicy()
	admin := Principal{ID: "a", Role: RoleAdmin}
	viewer := Principal{ID: "v", Role: RoleViewer}

	tests := []struct {
		name string
		p    Principal
		c    Capability
		want error
	}{
		{"admin runs", admin, CapRestoreRun, nil},
		{"admin reads", admin, CapRestoreRead, nil},
		{"viewer reads", viewer, CapRestoreRead, nil},
		{"viewer cannot run", viewer, CapRestoreRun, ErrForbidden},
		{"unknown role", Principal{ID: "x", Role: "root"}, CapRestoreRead, ErrForbidden},
		{"no principal", Principal{}, CapRestoreRead, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pol.Authorize(tt.p, tt.c)
			if !errors.Is(err, tt.want) {
				t.Errorf("Authorize() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseKeys(t *testing.T) {
	ring, err := ParseKeys([]string{"alpha-secret:admin", "beta-secret", " gamma:viewer "})
	if err != nil {
		t.Fatalf("ParseKeys() error = %v", err)
	}
	if ring.Len() != 3 {
		t.Errorf("Len() = %d, want 3", ring.Len())
	}

	p, ok := ring.Lookup("alpha-secret")
	if !ok || p.Role != RoleAdmin {
		t.Errorf("Lookup(alpha) = %+v, %v; want admin", p, ok)
	}
	if p.ID != "key:alph****" {
		t.Errorf("ID = %q, want %q", p.ID, "key:alph****")
	}

	p, ok = ring.Lookup("beta-secret")
	if !ok || p.Role != RoleViewer {
		t.Errorf("Lookup(beta) = %+v, %v; want viewer", p, ok)
	}

	if _, ok := ring.Lookup("gamma"); !ok {
		t.Error("Lookup(gamma) should succeed after trimming")
	}
	if _, ok := ring.Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	for _, entries := range [][]string{{":admin"}, {"k:root"}} {
		if _, err := ParseKeys(entries); err == nil {
			t.Errorf("ParseKeys(%v) expected error", entries)
		}
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext(empty) should report no principal")
	}

	want := Principal{ID: "key:abcd****", Role: RoleViewer}
	got, ok := FromContext(WithPrincipal(context.Background(), want))
	if !ok || got != want {
		t.Errorf("FromContext() = %+v, %v; want %+v", got, ok, want)
	}
}
