package reqid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %d from context, got %d ok=%v", id, got, ok)
	}
	if id <= 0 {
		t.Fatalf("expected a positive id, got %d", id)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("unexpected id in empty context")
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := NewContext(context.Background())
	same, got := Ensure(ctx)
	if same != ctx || got != id {
		t.Fatalf("Ensure replaced an existing id: %d -> %d", id, got)
	}

	fresh, got := Ensure(context.Background())
	if v, ok := FromContext(fresh); !ok || v != got || got <= 0 {
		t.Fatalf("Ensure did not attach an id: %d ok=%v", v, ok)
	}
}
