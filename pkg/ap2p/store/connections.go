package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// ErrConnectionNotFound is returned by accessors when no Connection row
// matches.
var ErrConnectionNotFound = errors.New("store: connection not found")

// InsertConnection persists a new Connection row. peer_id must be unique;
// violating that surfaces as an error, per spec §4.3.
func (s *Store) InsertConnection(c types.Connection) (types.Connection, error) {
	if c.PeerName == "" || c.PeerAddr == "" {
		return types.Connection{}, fmt.Errorf("store: connection requires non-empty peer_name and peer_addr")
	}
	if c.TimeEstablished.IsZero() {
		c.TimeEstablished = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO Connections(peer_id, self_id, peer_name, peer_addr, online, time_established) VALUES (?, ?, ?, ?, ?, ?)`,
		c.PeerID, c.SelfID, c.PeerName, c.PeerAddr, boolToInt(true), types.FormatTime(c.TimeEstablished),
	)
	if err != nil {
		return types.Connection{}, fmt.Errorf("store: inserting connection for peer_id %d: %w", c.PeerID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.Connection{}, fmt.Errorf("store: reading inserted connection id: %w", err)
	}
	c.ConnectionID = id
	c.Online = true
	return c, nil
}

func scanConnection(row interface{ Scan(...interface{}) error }) (types.Connection, error) {
	var c types.Connection
	var online int
	var established string
	if err := row.Scan(&c.ConnectionID, &c.PeerID, &c.SelfID, &c.PeerName, &c.PeerAddr, &online, &established); err != nil {
		return types.Connection{}, err
	}
	t, err := types.ParseTime(established)
	if err != nil {
		return types.Connection{}, fmt.Errorf("store: parsing time_established: %w", err)
	}
	c.Online = online != 0
	c.TimeEstablished = t
	return c, nil
}

const connectionColumns = `connection_id, peer_id, self_id, peer_name, peer_addr, online, time_established`

// GetConnection looks up a Connection by its local surrogate key.
func (s *Store) GetConnection(connectionID int64) (types.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM Connections WHERE connection_id = ?`, connectionID)
	c, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return types.Connection{}, ErrConnectionNotFound
	}
	if err != nil {
		return types.Connection{}, fmt.Errorf("store: getting connection %d: %w", connectionID, err)
	}
	return c, nil
}

// GetConnectionByPeerID looks up a Connection by the local peer_id.
func (s *Store) GetConnectionByPeerID(peerID uint32) (types.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM Connections WHERE peer_id = ?`, peerID)
	c, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return types.Connection{}, ErrConnectionNotFound
	}
	if err != nil {
		return types.Connection{}, fmt.Errorf("store: getting connection for peer_id %d: %w", peerID, err)
	}
	return c, nil
}

// GetConnections returns every known Connection.
func (s *Store) GetConnections() ([]types.Connection, error) {
	rows, err := s.db.Query(`SELECT ` + connectionColumns + ` FROM Connections ORDER BY connection_id`)
	if err != nil {
		return nil, fmt.Errorf("store: listing connections: %w", err)
	}
	defer rows.Close()

	var out []types.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning connection row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetPeerAddr returns the stored peer_addr for the connection with the
// given peer_id.
func (s *Store) GetPeerAddr(peerID uint32) (string, error) {
	var addr string
	err := s.db.QueryRow(`SELECT peer_addr FROM Connections WHERE peer_id = ?`, peerID).Scan(&addr)
	if err == sql.ErrNoRows {
		return "", ErrConnectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: getting peer_addr for peer_id %d: %w", peerID, err)
	}
	return addr, nil
}

// GetPeerName returns the stored peer_name for the connection with the
// given peer_id.
func (s *Store) GetPeerName(peerID uint32) (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT peer_name FROM Connections WHERE peer_id = ?`, peerID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", ErrConnectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: getting peer_name for peer_id %d: %w", peerID, err)
	}
	return name, nil
}

// PeerOnline reports the last observed reachability of the given peer.
func (s *Store) PeerOnline(peerID uint32) (bool, error) {
	var online int
	err := s.db.QueryRow(`SELECT online FROM Connections WHERE peer_id = ?`, peerID).Scan(&online)
	if err == sql.ErrNoRows {
		return false, ErrConnectionNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: getting online flag for peer_id %d: %w", peerID, err)
	}
	return online != 0, nil
}

// SetPeerOnline records the last observed reachability of the given peer.
func (s *Store) SetPeerOnline(peerID uint32, online bool) error {
	res, err := s.db.Exec(`UPDATE Connections SET online = ? WHERE peer_id = ?`, boolToInt(online), peerID)
	if err != nil {
		return fmt.Errorf("store: setting online flag for peer_id %d: %w", peerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: checking online update for peer_id %d: %w", peerID, err)
	}
	if n == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
