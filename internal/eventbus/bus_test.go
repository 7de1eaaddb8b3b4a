package eventbus

import (
	"testing"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeSent, Data: Outcome{Appender: "ops"}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != TypeSent || e.Time.IsZero() {
			t.Fatalf("unexpected event: %+v", e)
		}
		if o, ok := e.Data.(Outcome); !ok || o.Appender != "ops" {
			t.Fatalf("unexpected data: %+v", e.Data)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: TypeDropped})
	}
	if got := b.Dropped(); got != 4 {
		t.Fatalf("Dropped() = %d, want 4", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: TypeFailed})
}
