package runid

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %q from context, got %q ok=%v", id, got, ok)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q is not a uuid: %v", id, err)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx, id := NewContext(context.Background())
	same, got := Ensure(ctx)
	if got != id || same != ctx {
		t.Fatalf("Ensure replaced run id %q with %q", id, got)
	}
	_, fresh := Ensure(context.Background())
	if fresh == "" {
		t.Fatalf("Ensure on empty context returned no id")
	}
}
