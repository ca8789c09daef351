package types

import (
	"context"
	"testing"
)

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ctx = WithTenantID(ctx, "tenant")
	if got, ok := TenantID(ctx); !ok || got != "tenant" {
		t.Fatalf("TenantID mismatch: %v %v", got, ok)
	}

	ctx = WithUserID(ctx, "user")
	if got, ok := UserID(ctx); !ok || got != "user" {
		t.Fatalf("UserID mismatch: %v %v", got, ok)
	}

	ctx = WithRoles(ctx, []string{"admin", "operator"})
	if got, ok := Roles(ctx); !ok || len(got) != 2 || got[0] != "admin" {
		t.Fatalf("Roles mismatch: %v %v", got, ok)
	}
}

func TestContextHelpers_Absent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := TenantID(ctx); ok {
		t.Fatal("expected no tenant id")
	}
	if _, ok := UserID(ctx); ok {
		t.Fatal("expected no user id")
	}
	if _, ok := Roles(ctx); ok {
		t.Fatal("expected no roles")
	}
}
