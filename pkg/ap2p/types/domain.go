// Package types holds the domain model and wire protocol shared by every
// other package: connections, messages, and the JSON frames that travel
// between peers and between the backend and its attached frontend.
package types

import "time"

// ContentType discriminates what a Message's Content bytes hold.
type ContentType string

const (
	// TextContent is a UTF-8 encoded chat message.
	TextContent ContentType = "TEXT"
	// FileContent means Content holds the basename of a blob stored under
	// the file-storage directory.
	FileContent ContentType = "FILE"
)

// TimeLayout is the single fixed format used to parse and serialize every
// timestamp that crosses the wire or is persisted in the store.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a string previously produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Connection represents a known remote peer, as described in spec §3.
type Connection struct {
	// ConnectionID is the local surrogate key, auto-assigned by the store.
	ConnectionID int64
	// PeerID is the 32-bit id this node uses to address the peer. Unique
	// across the local store.
	PeerID uint32
	// SelfID is the 32-bit id the peer uses to address this node.
	SelfID uint32
	// PeerName is the peer's chosen display name.
	PeerName string
	// PeerAddr is the peer's host:port, as seen by this node.
	PeerAddr string
	// Online is the last observed reachability of the peer.
	Online bool
	// TimeEstablished is when this connection row was created.
	TimeEstablished time.Time
}

// Message represents one delivered or pending delivery, as described in
// spec §3. TimeReceived is nil while the message is Pending.
type Message struct {
	// MessageID is assigned by the sender (the rowid of its own Messages row)
	// and is unique per sender; it is preserved verbatim by the recipient.
	MessageID uint32
	// ConnectionID is the local connection this message belongs to.
	ConnectionID int64
	// TimeSent is the sender's clock at the time of sending.
	TimeSent time.Time
	// TimeReceived is set exactly once, monotonically after TimeSent, by
	// the mark-received transition. Nil means Pending.
	TimeReceived *time.Time
	// ContentType says how to interpret Content.
	ContentType ContentType
	// Content is UTF-8 text for TextContent, or a file basename for
	// FileContent.
	Content []byte
}

// Pending reports whether the message has not yet been marked received.
func (m Message) Pending() bool {
	return m.TimeReceived == nil
}
