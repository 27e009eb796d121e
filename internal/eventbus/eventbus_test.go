package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishFiltersByPredicate(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe(ForSession("s1"))
	defer unsub()

	hub.Publish(Event{Kind: KindOutput, SessionID: "s2", Line: "ignored"})
	hub.Publish(Event{Kind: KindOutput, SessionID: "s1", Line: "hello"})

	select {
	case e := <-ch:
		assert.Equal(t, "hello", e.Line)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected second event: %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe(func(Event) bool { return true })
	unsub()

	_, open := <-ch
	require.False(t, open)
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	hub := NewHub()
	_, unsub := hub.Subscribe(func(Event) bool { return true })
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(Event{Kind: KindOutput, SessionID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}
