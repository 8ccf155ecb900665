package eventbus

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type ping struct{ N int }
type pong struct{}

func TestSubscribeOrderAndUnsubscribe(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []string
	unsubA := Subscribe(func(_ context.Context, e ping) { got = append(got, "a") })
	unsubB := Subscribe(func(_ context.Context, e ping) { got = append(got, "b") })
	unsubC := Subscribe(func(_ context.Context, e ping) { got = append(got, "c") })
	defer unsubC()

	Publish(context.Background(), ping{N: 1})
	// Handlers built from the same literal stay distinguishable.
	unsubB()
	unsubB()
	Publish(context.Background(), ping{N: 2})
	unsubA()
	Publish(context.Background(), ping{N: 3})

	want := []string{"a", "b", "c", "a", "c", "c"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("deliveries (-want +got):\n%s", diff)
	}
}

func TestActive(t *testing.T) {
	Use(nil)
	if Active[ping]() {
		t.Fatalf("active without a bus")
	}
	Subscribe(func(context.Context, ping) {})()

	Use(New())
	defer Use(nil)
	unsub := Subscribe(func(context.Context, ping) {})
	if !Active[ping]() || Active[pong]() {
		t.Fatalf("unexpected activity: ping=%v pong=%v", Active[ping](), Active[pong]())
	}
	unsub()
	if Active[ping]() {
		t.Fatalf("still active after unsubscribe")
	}
}

func TestPublishWithoutBus(t *testing.T) {
	Use(nil)
	Publish(context.Background(), ping{})
}
