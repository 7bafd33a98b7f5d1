package core

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// TestRetryUnreceivedConverges flips a peer offline and back online while a
// pile of messages are pending, and checks that RetryUnreceived eventually
// delivers every one of them with no goroutines left running afterward.
func TestRetryUnreceivedConverges(t *testing.T) {
	opt := goleak.IgnoreCurrent()
	// Registered before the nodes, so it runs after their listener and store
	// cleanups have stopped the goroutines those nodes started.
	t.Cleanup(func() { goleak.VerifyNone(t, opt) })

	a := newTestNode(t, "alice")
	b := newTestNode(t, "bob")
	seedSymmetricConnection(t, a, b, 42, 7)

	const messageCount = 25
	var wantIDs []uint32
	for i := 0; i < messageCount; i++ {
		m, err := a.store.NewMessage(42, types.NewTextContent("hi"))
		if err != nil {
			t.Fatalf("seeding pending message %d: %v", i, err)
		}
		wantIDs = append(wantIDs, m.MessageID)
	}

	if err := a.store.SetPeerOnline(42, false); err != nil {
		t.Fatalf("marking peer offline: %v", err)
	}
	a.d.retryUnreceived(42)
	pending, err := a.store.GetUnreceivedFor(42)
	if err != nil {
		t.Fatalf("listing pending after offline retry: %v", err)
	}
	if len(pending) != messageCount {
		t.Fatalf("retry_unreceived should short-circuit while offline, got %d still pending", len(pending))
	}

	if err := a.store.SetPeerOnline(42, true); err != nil {
		t.Fatalf("marking peer online: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.d.retryUnreceived(42)
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, err = a.store.GetUnreceivedFor(42)
		if err != nil {
			t.Fatalf("listing pending: %v", err)
		}
		if len(pending) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("retry did not converge: %d messages still pending", len(pending))
		}
		a.d.retryUnreceived(42)
		time.Sleep(20 * time.Millisecond)
	}

	bMsgs, err := b.store.GetMessages(7, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("listing B's messages: %v", err)
	}
	if len(bMsgs) != messageCount {
		t.Fatalf("expected B to have received all %d messages, got %d", messageCount, len(bMsgs))
	}
	got := make(map[uint32]bool, len(bMsgs))
	for _, m := range bMsgs {
		got[m.MessageID] = true
	}
	for _, id := range wantIDs {
		if !got[id] {
			t.Errorf("message_id %d sent by A never arrived at B", id)
		}
	}
}
