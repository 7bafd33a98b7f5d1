package types

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// MarshalJSON renders a Connection using the fixed timestamp format shared
// by the wire protocol and the store.
func (c Connection) MarshalJSON() ([]byte, error) {
	type wire struct {
		ConnectionID    int64  `json:"connection_id"`
		PeerID          uint32 `json:"peer_id"`
		SelfID          uint32 `json:"self_id"`
		PeerName        string `json:"peer_name"`
		PeerAddr        string `json:"peer_addr"`
		Online          bool   `json:"online"`
		TimeEstablished string `json:"time_established"`
	}
	return json.Marshal(wire{
		ConnectionID:    c.ConnectionID,
		PeerID:          c.PeerID,
		SelfID:          c.SelfID,
		PeerName:        c.PeerName,
		PeerAddr:        c.PeerAddr,
		Online:          c.Online,
		TimeEstablished: FormatTime(c.TimeEstablished),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Connection.
func (c *Connection) UnmarshalJSON(data []byte) error {
	type wire struct {
		ConnectionID    int64  `json:"connection_id"`
		PeerID          uint32 `json:"peer_id"`
		SelfID          uint32 `json:"self_id"`
		PeerName        string `json:"peer_name"`
		PeerAddr        string `json:"peer_addr"`
		Online          bool   `json:"online"`
		TimeEstablished string `json:"time_established"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t, err := ParseTime(w.TimeEstablished)
	if err != nil {
		return err
	}
	*c = Connection{
		ConnectionID:    w.ConnectionID,
		PeerID:          w.PeerID,
		SelfID:          w.SelfID,
		PeerName:        w.PeerName,
		PeerAddr:        w.PeerAddr,
		Online:          w.Online,
		TimeEstablished: t,
	}
	return nil
}

// MarshalJSON renders a Message using the fixed timestamp format and
// base64-encoded content.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		MessageID    uint32  `json:"message_id"`
		ConnectionID int64   `json:"connection_id"`
		TimeSent     string  `json:"time_sent"`
		TimeReceived *string `json:"time_received,omitempty"`
		ContentType  string  `json:"content_type"`
		Content      string  `json:"content"`
	}
	w := wire{
		MessageID:    m.MessageID,
		ConnectionID: m.ConnectionID,
		TimeSent:     FormatTime(m.TimeSent),
		ContentType:  string(m.ContentType),
		Content:      base64.StdEncoding.EncodeToString(m.Content),
	}
	if m.TimeReceived != nil {
		s := FormatTime(*m.TimeReceived)
		w.TimeReceived = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler for Message.
func (m *Message) UnmarshalJSON(data []byte) error {
	type wire struct {
		MessageID    uint32  `json:"message_id"`
		ConnectionID int64   `json:"connection_id"`
		TimeSent     string  `json:"time_sent"`
		TimeReceived *string `json:"time_received,omitempty"`
		ContentType  string  `json:"content_type"`
		Content      string  `json:"content"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sent, err := ParseTime(w.TimeSent)
	if err != nil {
		return err
	}
	content, err := base64.StdEncoding.DecodeString(w.Content)
	if err != nil {
		return err
	}
	var received *time.Time
	if w.TimeReceived != nil {
		r, err := ParseTime(*w.TimeReceived)
		if err != nil {
			return err
		}
		received = &r
	}
	*m = Message{
		MessageID:    w.MessageID,
		ConnectionID: w.ConnectionID,
		TimeSent:     sent,
		TimeReceived: received,
		ContentType:  ContentType(w.ContentType),
		Content:      content,
	}
	return nil
}
