package types

import (
	"encoding/json"
	"fmt"
)

// PeerMessage is the on-wire shape of a single message exchanged between
// peers. SelfID identifies, from the recipient's point of view, which of
// its Connections this message belongs to: by construction of the
// ProposeConnection/AcceptConnection handshake, the sender's own self_id for
// a connection is always equal to the recipient's peer_id for that same
// connection, so the recipient resolves it directly against its
// Connections.peer_id column.
type PeerMessage struct {
	SelfID    uint32
	MessageID uint32
	TimeSent  Timestamp
	Content   MessageContent
}

// Timestamp adapts time.Time to the fixed wire/storage timestamp format.
type Timestamp struct{ inner string }

// NewTimestamp wraps a formatted instant for transport.
func NewTimestamp(s string) Timestamp { return Timestamp{inner: s} }

// String returns the formatted instant.
func (t Timestamp) String() string { return t.inner }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.inner)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.inner = s
	return nil
}

type wirePeerMessage struct {
	SelfID    uint32         `json:"self_id"`
	MessageID uint32         `json:"message_id"`
	TimeSent  Timestamp      `json:"time_sent"`
	Content   MessageContent `json:"content"`
}

func (m PeerMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(wirePeerMessage(m))
}

func (m *PeerMessage) UnmarshalJSON(data []byte) error {
	var w wirePeerMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = PeerMessage(w)
	return nil
}

// envelope is the shared shape of every tagged union on the wire: a "kind"
// discriminator plus the variant's own fields inlined into "payload".
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(kind string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(envelope{Kind: kind, Payload: raw})
}

// ---- Peer protocol (spec §4.5 / §6) ----

// PeerToPeerRequest is the disjoint union of requests a node may send to a
// peer on a single-shot connection.
type PeerToPeerRequest struct {
	kind                string
	ProposeSelfID       uint32
	ProposePeerName     string
	ProposePeerAddr     string
	Message             PeerMessage
	BulkMessages        []PeerMessage
}

const (
	kindProposeConnection = "ProposeConnection"
	kindMessage           = "Message"
	kindBulkMessage       = "BulkMessage"
)

// NewProposeConnection builds the ProposeConnection request variant.
func NewProposeConnection(selfID uint32, peerName, peerAddr string) PeerToPeerRequest {
	return PeerToPeerRequest{kind: kindProposeConnection, ProposeSelfID: selfID, ProposePeerName: peerName, ProposePeerAddr: peerAddr}
}

// NewMessageRequest builds the Message request variant.
func NewMessageRequest(m PeerMessage) PeerToPeerRequest {
	return PeerToPeerRequest{kind: kindMessage, Message: m}
}

// NewBulkMessageRequest builds the BulkMessage request variant.
func NewBulkMessageRequest(ms []PeerMessage) PeerToPeerRequest {
	return PeerToPeerRequest{kind: kindBulkMessage, BulkMessages: ms}
}

// Kind reports which variant this request holds.
func (r PeerToPeerRequest) Kind() string { return r.kind }

// IsProposeConnection reports whether r holds the ProposeConnection variant.
func (r PeerToPeerRequest) IsProposeConnection() bool { return r.kind == kindProposeConnection }

// IsMessage reports whether r holds the Message variant.
func (r PeerToPeerRequest) IsMessage() bool { return r.kind == kindMessage }

// IsBulkMessage reports whether r holds the BulkMessage variant.
func (r PeerToPeerRequest) IsBulkMessage() bool { return r.kind == kindBulkMessage }

func (r PeerToPeerRequest) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindProposeConnection:
		return encode(r.kind, struct {
			SelfID   uint32 `json:"self_id"`
			PeerName string `json:"peer_name"`
			PeerAddr string `json:"peer_addr"`
		}{r.ProposeSelfID, r.ProposePeerName, r.ProposePeerAddr})
	case kindMessage:
		return encode(r.kind, r.Message)
	case kindBulkMessage:
		return encode(r.kind, r.BulkMessages)
	default:
		return nil, fmt.Errorf("peer request: unknown kind %q", r.kind)
	}
}

func (r *PeerToPeerRequest) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindProposeConnection:
		var p struct {
			SelfID   uint32 `json:"self_id"`
			PeerName string `json:"peer_name"`
			PeerAddr string `json:"peer_addr"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewProposeConnection(p.SelfID, p.PeerName, p.PeerAddr)
	case kindMessage:
		var m PeerMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return err
		}
		*r = NewMessageRequest(m)
	case kindBulkMessage:
		var ms []PeerMessage
		if err := json.Unmarshal(env.Payload, &ms); err != nil {
			return err
		}
		*r = NewBulkMessageRequest(ms)
	default:
		return fmt.Errorf("peer request: unknown kind %q", env.Kind)
	}
	return nil
}

// PeerToPeerResponse is the disjoint union of responses to a
// PeerToPeerRequest.
type PeerToPeerResponse struct {
	kind           string
	AcceptPeerID   uint32
	AcceptPeerName string
	AcceptPeerAddr string
	ReceivedID     uint32
	BulkReceivedID []uint32
}

const (
	kindAcceptConnection = "AcceptConnection"
	kindReceived         = "Received"
	kindBulkReceived     = "BulkReceived"
)

// NewAcceptConnection builds the AcceptConnection response variant.
func NewAcceptConnection(peerID uint32, peerName, peerAddr string) PeerToPeerResponse {
	return PeerToPeerResponse{kind: kindAcceptConnection, AcceptPeerID: peerID, AcceptPeerName: peerName, AcceptPeerAddr: peerAddr}
}

// NewReceived builds the Received response variant.
func NewReceived(messageID uint32) PeerToPeerResponse {
	return PeerToPeerResponse{kind: kindReceived, ReceivedID: messageID}
}

// NewBulkReceived builds the BulkReceived response variant.
func NewBulkReceived(ids []uint32) PeerToPeerResponse {
	return PeerToPeerResponse{kind: kindBulkReceived, BulkReceivedID: ids}
}

// Kind reports which variant this response holds.
func (r PeerToPeerResponse) Kind() string { return r.kind }

// IsAcceptConnection reports whether r holds the AcceptConnection variant.
func (r PeerToPeerResponse) IsAcceptConnection() bool { return r.kind == kindAcceptConnection }

// IsReceived reports whether r holds the Received variant.
func (r PeerToPeerResponse) IsReceived() bool { return r.kind == kindReceived }

// IsBulkReceived reports whether r holds the BulkReceived variant.
func (r PeerToPeerResponse) IsBulkReceived() bool { return r.kind == kindBulkReceived }

func (r PeerToPeerResponse) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindAcceptConnection:
		return encode(r.kind, struct {
			PeerID   uint32 `json:"peer_id"`
			PeerName string `json:"peer_name"`
			PeerAddr string `json:"peer_addr"`
		}{r.AcceptPeerID, r.AcceptPeerName, r.AcceptPeerAddr})
	case kindReceived:
		return encode(r.kind, struct {
			MessageID uint32 `json:"message_id"`
		}{r.ReceivedID})
	case kindBulkReceived:
		return encode(r.kind, struct {
			MessageIDs []uint32 `json:"message_ids"`
		}{r.BulkReceivedID})
	default:
		return nil, fmt.Errorf("peer response: unknown kind %q", r.kind)
	}
}

func (r *PeerToPeerResponse) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case kindAcceptConnection:
		var p struct {
			PeerID   uint32 `json:"peer_id"`
			PeerName string `json:"peer_name"`
			PeerAddr string `json:"peer_addr"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewAcceptConnection(p.PeerID, p.PeerName, p.PeerAddr)
	case kindReceived:
		var p struct {
			MessageID uint32 `json:"message_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewReceived(p.MessageID)
	case kindBulkReceived:
		var p struct {
			MessageIDs []uint32 `json:"message_ids"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		*r = NewBulkReceived(p.MessageIDs)
	default:
		return fmt.Errorf("peer response: unknown kind %q", env.Kind)
	}
	return nil
}
