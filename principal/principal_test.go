package principal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/principal"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := principal.NewDirectory(&principal.Principal{ID: "u1", Name: "Ada"})

	p, err := d.ResolvePrincipal(ctx, "u1")
	if err != nil {
		t.Fatalf("ResolvePrincipal(u1): %v", err)
	}
	if p.Name != "Ada" {
		t.Errorf("Name = %q, want %q", p.Name, "Ada")
	}

	// Mutating the copy must not leak back.
	p.Name = "changed"
	again, _ := d.ResolvePrincipal(ctx, "u1")
	if again.Name != "Ada" {
		t.Errorf("Name after mutation = %q, want %q", again.Name, "Ada")
	}

	if _, err := d.ResolvePrincipal(ctx, "nope"); !errors.Is(err, jobqueue.ErrPrincipalNotFound) {
		t.Errorf("ResolvePrincipal(nope) = %v, want ErrPrincipalNotFound", err)
	}

	d.Remove("u1")
	if _, err := d.ResolvePrincipal(ctx, "u1"); !errors.Is(err, jobqueue.ErrPrincipalNotFound) {
		t.Errorf("after Remove = %v, want ErrPrincipalNotFound", err)
	}
}
