package hub

import (
	"sync"
	"testing"
	"time"
)

func recvOne(t *testing.T, s *Subscriber) []byte {
	t.Helper()
	select {
	case b, ok := <-s.Out():
		if !ok {
			t.Fatalf("channel closed")
		}
		return b
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
		return nil
	}
}

func TestBroadcast_DeliversToEverySubscriberOnce(t *testing.T) {
	h := New(nil, 4)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Broadcast([]byte("one"))

	if got := string(recvOne(t, a)); got != "one" {
		t.Fatalf("a got %q", got)
	}
	if got := string(recvOne(t, b)); got != "one" {
		t.Fatalf("b got %q", got)
	}

	// Exactly once: nothing else queued.
	select {
	case extra := <-a.Out():
		t.Fatalf("unexpected extra delivery %q", string(extra))
	default:
	}
}

func TestBroadcast_EvictsFullSubscriberOthersUnaffected(t *testing.T) {
	h := New(nil, 1)
	stalled := h.Subscribe()
	healthy := h.Subscribe()

	// Fill the stalled subscriber's buffer, then overflow it.
	h.Broadcast([]byte("first"))
	recvOne(t, healthy)
	h.Broadcast([]byte("second"))

	if got := string(recvOne(t, healthy)); got != "second" {
		t.Fatalf("healthy got %q", got)
	}
	if h.Count() != 1 {
		t.Fatalf("count=%d want 1 after eviction", h.Count())
	}

	// The evicted channel ends after its buffered frame.
	if got := string(recvOne(t, stalled)); got != "first" {
		t.Fatalf("stalled buffered %q", got)
	}
	if _, ok := <-stalled.Out(); ok {
		t.Fatalf("evicted subscriber channel still open")
	}

	st := h.Stats()
	if st.EvictTotal != 1 || st.BroadcastTotal != 2 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	h := New(nil, 1)
	s := h.Subscribe()

	h.Unsubscribe(s)
	h.Unsubscribe(s)
	if h.Count() != 0 {
		t.Fatalf("count=%d want 0", h.Count())
	}

	// Broadcast after unsubscribe must not panic or deliver.
	h.Broadcast([]byte("gone"))
	if _, ok := <-s.Out(); ok {
		t.Fatalf("delivery after unsubscribe")
	}
}

func TestBroadcast_RacesWithUnsubscribeSafely(t *testing.T) {
	h := New(nil, 1)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					h.Broadcast([]byte("x"))
				}
			}
		}()
	}

	// Churn subscribers under fire. A close racing a send would panic the
	// process, so surviving the loop is the assertion.
	for i := 0; i < 5000; i++ {
		s := h.Subscribe()
		h.Unsubscribe(s)
	}
	close(done)
	wg.Wait()

	if h.Count() != 0 {
		t.Fatalf("count=%d want 0", h.Count())
	}
}

func TestSend_QueuesForSingleSubscriber(t *testing.T) {
	h := New(nil, 2)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Send(a, []byte("hello a"))
	if got := string(recvOne(t, a)); got != "hello a" {
		t.Fatalf("a got %q", got)
	}
	select {
	case got := <-b.Out():
		t.Fatalf("b received %q from Send", string(got))
	default:
	}
}
