package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nkct/ap2pmsg/pkg/ap2p/definition"
	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

func mustInsertConnection(t *testing.T, s *Store, peerID uint32) types.Connection {
	t.Helper()
	c, err := s.InsertConnection(types.Connection{PeerID: peerID, SelfID: peerID + 100, PeerName: "peer", PeerAddr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("insert connection: %v", err)
	}
	return c
}

func TestNewMessagePendingUntilMarkedReceived(t *testing.T) {
	s := newTestStore(t)
	mustInsertConnection(t, s, 7)

	m, err := s.NewMessage(7, types.NewTextContent("hello"))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if !m.Pending() {
		t.Fatalf("expected a freshly sent message to be Pending")
	}
	if m.MessageID == 0 {
		t.Fatalf("expected a non-zero message_id")
	}

	if err := s.MarkAsReceived(m.ConnectionID, m.MessageID); err != nil {
		t.Fatalf("mark received: %v", err)
	}
	got, err := s.GetMessage(m.ConnectionID, m.MessageID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Pending() {
		t.Errorf("expected message to be Delivered after MarkAsReceived")
	}
}

func TestMarkAsReceivedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	mustInsertConnection(t, s, 7)
	m, err := s.NewMessage(7, types.NewTextContent("hello"))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	if err := s.MarkAsReceived(m.ConnectionID, m.MessageID); err != nil {
		t.Fatalf("first mark received: %v", err)
	}
	first, err := s.GetMessage(m.ConnectionID, m.MessageID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}

	if err := s.MarkAsReceived(m.ConnectionID, m.MessageID); err != nil {
		t.Fatalf("second mark received: %v", err)
	}
	second, err := s.GetMessage(m.ConnectionID, m.MessageID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !first.TimeReceived.Equal(*second.TimeReceived) {
		t.Errorf("expected time_received to be unchanged by a repeated mark, got %v then %v", first.TimeReceived, second.TimeReceived)
	}
}

func TestInsertMessageIsDeliveredImmediately(t *testing.T) {
	s := newTestStore(t)
	c := mustInsertConnection(t, s, 7)

	m, err := s.InsertMessage(c.ConnectionID, 55, time.Now().UTC(), types.NewTextContent("hi"))
	if err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if m.Pending() {
		t.Errorf("expected a recipient-inserted message to be Delivered immediately")
	}
}

func TestBulkMarkAsReceivedEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.BulkMarkAsReceived(0, nil); err != nil {
		t.Errorf("expected nil error on empty bulk mark, got %v", err)
	}
}

func TestBulkMarkAsReceived(t *testing.T) {
	s := newTestStore(t)
	c := mustInsertConnection(t, s, 7)

	var ids []uint32
	for i := 0; i < 3; i++ {
		m, err := s.NewMessage(7, types.NewTextContent("msg"))
		if err != nil {
			t.Fatalf("new message: %v", err)
		}
		ids = append(ids, m.MessageID)
	}

	if err := s.BulkMarkAsReceived(c.ConnectionID, ids); err != nil {
		t.Fatalf("bulk mark: %v", err)
	}
	pending, err := s.GetUnreceivedFor(7)
	if err != nil {
		t.Fatalf("get unreceived: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending messages left, got %d", len(pending))
	}
}

func TestGetUnreceivedForOnlyLocalPending(t *testing.T) {
	s := newTestStore(t)
	c := mustInsertConnection(t, s, 7)

	sent, err := s.NewMessage(7, types.NewTextContent("outgoing"))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if _, err := s.InsertMessage(c.ConnectionID, 900, time.Now().UTC(), types.NewTextContent("incoming")); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	pending, err := s.GetUnreceivedFor(7)
	if err != nil {
		t.Fatalf("get unreceived: %v", err)
	}
	if len(pending) != 1 || pending[0].MessageID != sent.MessageID {
		t.Fatalf("expected only the unacknowledged outgoing message, got %+v", pending)
	}
}

func TestGetMessagesFiltersByTimeRange(t *testing.T) {
	s := newTestStore(t)
	mustInsertConnection(t, s, 7)
	if _, err := s.NewMessage(7, types.NewTextContent("in range")); err != nil {
		t.Fatalf("new message: %v", err)
	}

	now := time.Now().UTC()
	all, err := s.GetMessages(7, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 message in range, got %d", len(all))
	}

	none, err := s.GetMessages(7, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected 0 messages outside range, got %d", len(none))
	}
}

func TestFileMessageRoundTripWritesBlobToDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "files"), definition.NewLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	mustInsertConnection(t, s, 7)
	data := []byte("file contents")
	m, err := s.NewMessage(7, types.NewFileContent("report.txt", data))
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if m.ContentType != types.FileContent {
		t.Fatalf("expected FileContent, got %v", m.ContentType)
	}

	blob, err := os.ReadFile(filepath.Join(dir, "files", "report.txt"))
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if len(blob) != len(data) {
		t.Errorf("expected blob of length %d, got %d", len(data), len(blob))
	}
}
