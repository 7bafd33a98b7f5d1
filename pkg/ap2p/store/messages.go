package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// ErrMessageNotFound is returned when no Message row matches a lookup.
var ErrMessageNotFound = errors.New("store: message not found")

// ErrInvalidContentType is a store error raised when a Messages row holds a
// content_type outside {TEXT, FILE}.
var ErrInvalidContentType = errors.New("store: invalid content_type")

// persistContent resolves a wire MessageContent into the (content_type,
// content) pair stored in the Messages row, writing FILE blobs to disk
// under the files directory.
func (s *Store) persistContent(content types.MessageContent) (types.ContentType, []byte, error) {
	if !content.IsFile() {
		return types.TextContent, []byte(content.Text()), nil
	}
	name, data := content.File()
	if err := os.WriteFile(s.filePath(name), data, 0o644); err != nil {
		return "", nil, fmt.Errorf("store: writing file blob %s: %w", name, err)
	}
	return types.FileContent, []byte(name), nil
}

// NewMessage creates a new, not-yet-received Message addressed to the
// connection identified by peerID, per spec §4.3's new_message contract.
// message_id is assigned as the database's own rowid for the inserted row.
func (s *Store) NewMessage(peerID uint32, content types.MessageContent) (types.Message, error) {
	conn, err := s.GetConnectionByPeerID(peerID)
	if err != nil {
		return types.Message{}, err
	}
	contentType, stored, err := s.persistContent(content)
	if err != nil {
		return types.Message{}, err
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO Messages(message_id, connection_id, time_sent, time_received, content_type, content) VALUES (0, ?, ?, NULL, ?, ?)`,
		conn.ConnectionID, types.FormatTime(now), string(contentType), stored,
	)
	if err != nil {
		return types.Message{}, fmt.Errorf("store: inserting message for peer_id %d: %w", peerID, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return types.Message{}, fmt.Errorf("store: reading inserted message rowid: %w", err)
	}
	messageID := uint32(rowID)
	if _, err := s.db.Exec(`UPDATE Messages SET message_id = ? WHERE rowid = ?`, messageID, rowID); err != nil {
		return types.Message{}, fmt.Errorf("store: assigning message_id %d: %w", messageID, err)
	}

	return types.Message{
		MessageID:    messageID,
		ConnectionID: conn.ConnectionID,
		TimeSent:     now,
		ContentType:  contentType,
		Content:      stored,
	}, nil
}

// InsertMessage persists a message received from a peer, preserving the
// sender's message_id and marking it received immediately, per spec §4.3's
// insert_message contract and §4.9 (a recipient's copy is Delivered as soon
// as it exists).
func (s *Store) InsertMessage(connectionID int64, messageID uint32, timeSent time.Time, content types.MessageContent) (types.Message, error) {
	contentType, stored, err := s.persistContent(content)
	if err != nil {
		return types.Message{}, err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO Messages(message_id, connection_id, time_sent, time_received, content_type, content) VALUES (?, ?, ?, ?, ?, ?)`,
		messageID, connectionID, types.FormatTime(timeSent), types.FormatTime(now), string(contentType), stored,
	)
	if err != nil {
		return types.Message{}, fmt.Errorf("store: inserting received message %d: %w", messageID, err)
	}
	return types.Message{
		MessageID:    messageID,
		ConnectionID: connectionID,
		TimeSent:     timeSent,
		TimeReceived: &now,
		ContentType:  contentType,
		Content:      stored,
	}, nil
}

// LoadContent reconstitutes a stored Message's wire content, reading the
// blob from disk for FILE messages.
func (s *Store) LoadContent(m types.Message) (types.MessageContent, error) {
	switch m.ContentType {
	case types.TextContent:
		return types.NewTextContent(string(m.Content)), nil
	case types.FileContent:
		name := string(m.Content)
		data, err := os.ReadFile(s.filePath(name))
		if err != nil {
			return types.MessageContent{}, fmt.Errorf("store: reading file blob %s: %w", name, err)
		}
		return types.NewFileContent(name, data), nil
	default:
		return types.MessageContent{}, fmt.Errorf("%w: %q", ErrInvalidContentType, m.ContentType)
	}
}

// GetMessage looks up a single message by its sender-assigned id, scoped to
// a connection since message_id alone is only unique per sender.
func (s *Store) GetMessage(connectionID int64, messageID uint32) (types.Message, error) {
	row := s.db.QueryRow(
		`SELECT message_id, connection_id, time_sent, time_received, content_type, content FROM Messages WHERE connection_id = ? AND message_id = ?`,
		connectionID, messageID,
	)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return types.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("store: getting message %d: %w", messageID, err)
	}
	return m, nil
}

func scanMessage(row interface{ Scan(...interface{}) error }) (types.Message, error) {
	var m types.Message
	var sent string
	var received sql.NullString
	var contentType string
	if err := row.Scan(&m.MessageID, &m.ConnectionID, &sent, &received, &contentType, &m.Content); err != nil {
		return types.Message{}, err
	}
	t, err := types.ParseTime(sent)
	if err != nil {
		return types.Message{}, fmt.Errorf("parsing time_sent: %w", err)
	}
	m.TimeSent = t
	if received.Valid {
		r, err := types.ParseTime(received.String)
		if err != nil {
			return types.Message{}, fmt.Errorf("parsing time_received: %w", err)
		}
		m.TimeReceived = &r
	}
	switch types.ContentType(contentType) {
	case types.TextContent, types.FileContent:
		m.ContentType = types.ContentType(contentType)
	default:
		return types.Message{}, fmt.Errorf("%w: %q", ErrInvalidContentType, contentType)
	}
	return m, nil
}

// MarkAsReceived sets time_received=now for the named message, once. Both
// connectionID and messageID are required: message_id is only unique within
// a connection (hence the Messages table's composite primary key), so an
// unscoped match could flip an unrelated connection's row that happens to
// reuse the same message_id value. The time_received IS NULL guard makes the
// update idempotent.
func (s *Store) MarkAsReceived(connectionID int64, messageID uint32) error {
	now := types.FormatTime(time.Now().UTC())
	_, err := s.db.Exec(
		`UPDATE Messages SET time_received = ? WHERE connection_id = ? AND message_id = ? AND time_received IS NULL`,
		now, connectionID, messageID,
	)
	if err != nil {
		return fmt.Errorf("store: marking message %d received: %w", messageID, err)
	}
	return nil
}

// BulkMarkAsReceived applies MarkAsReceived to every id in one statement, as
// a single prepared statement with a generated list of placeholders, per
// spec §4.3. All ids are scoped to the same connectionID, matching
// deliverBulk's single-peer batch.
func (s *Store) BulkMarkAsReceived(connectionID int64, messageIDs []uint32) error {
	if len(messageIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(messageIDs))
	args := make([]interface{}, 0, len(messageIDs)+2)
	args = append(args, types.FormatTime(time.Now().UTC()), connectionID)
	for i, id := range messageIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(
		`UPDATE Messages SET time_received = ? WHERE connection_id = ? AND time_received IS NULL AND message_id IN (%s)`,
		strings.Join(placeholders, ", "),
	)
	_, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("store: bulk marking %d messages received: %w", len(messageIDs), err)
	}
	return nil
}

// GetMessages returns the messages for peerID's connection sent within
// [since, until].
func (s *Store) GetMessages(peerID uint32, since, until time.Time) ([]types.Message, error) {
	conn, err := s.GetConnectionByPeerID(peerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT message_id, connection_id, time_sent, time_received, content_type, content
		 FROM Messages WHERE connection_id = ? AND time_sent >= ? AND time_sent <= ?
		 ORDER BY time_sent`,
		conn.ConnectionID, types.FormatTime(since), types.FormatTime(until),
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing messages for peer_id %d: %w", peerID, err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetUnreceivedFor returns the Pending messages addressed to peerID: since
// InsertMessage marks received messages Delivered immediately, only this
// node's own outgoing, unacknowledged messages can still be Pending.
func (s *Store) GetUnreceivedFor(peerID uint32) ([]types.Message, error) {
	conn, err := s.GetConnectionByPeerID(peerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT message_id, connection_id, time_sent, time_received, content_type, content
		 FROM Messages WHERE connection_id = ? AND time_received IS NULL
		 ORDER BY time_sent`,
		conn.ConnectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: listing unreceived messages for peer_id %d: %w", peerID, err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning unreceived message row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
