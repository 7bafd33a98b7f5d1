package core

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/nkct/ap2pmsg/pkg/ap2p/codec"
	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// connectPeer opens a TCP connection bounded by the configured peer
// timeout, per spec §4.8 step 1.
func (d *Dispatcher) connectPeer(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, d.cfg.PeerTimeout)
}

// sendInitial wraps req as the InitialRequest every accepted socket
// expects as its first and only frame, and writes it.
func sendInitial(writer *bufio.Writer, req types.PeerToPeerRequest) error {
	return codec.WriteJSON(writer, types.NewPeerInitialRequest(req))
}

// deliverMessage implements the delivery engine of spec §4.8 for a single
// message: connect, track reachability, send, await the matching
// response.
func (d *Dispatcher) deliverMessage(peerID uint32, msg types.Message) {
	conn, err := d.store.GetConnectionByPeerID(peerID)
	if err != nil {
		d.log.Errorf("delivery: no connection for peer_id %d: %v", peerID, err)
		return
	}

	peerConn, err := d.connectPeer(conn.PeerAddr)
	if err != nil {
		d.log.Warnf("could not connect to peer %d at %s: %v", peerID, conn.PeerAddr, err)
		if serr := d.store.SetPeerOnline(peerID, false); serr != nil {
			d.log.Errorf("delivery: recording peer %d offline: %v", peerID, serr)
		}
		return
	}
	defer peerConn.Close()
	if err := d.store.SetPeerOnline(peerID, true); err != nil {
		d.log.Errorf("delivery: recording peer %d online: %v", peerID, err)
	}

	content, err := d.store.LoadContent(msg)
	if err != nil {
		d.log.Errorf("delivery: loading content for message %d: %v", msg.MessageID, err)
		return
	}
	pm := types.PeerMessage{
		SelfID:    conn.SelfID,
		MessageID: msg.MessageID,
		TimeSent:  types.NewTimestamp(types.FormatTime(msg.TimeSent)),
		Content:   content,
	}

	writer := bufio.NewWriter(peerConn)
	if err := sendInitial(writer, types.NewMessageRequest(pm)); err != nil {
		d.log.Errorf("delivery: sending message %d to %s: %v", msg.MessageID, conn.PeerAddr, err)
		return
	}
	d.log.Infof("sent message %d to peer at %s", msg.MessageID, conn.PeerAddr)

	reader := bufio.NewReader(peerConn)
	raw, err := codec.ReadFrame(reader)
	if err != nil {
		d.log.Errorf("delivery: no response from peer %d: %v", peerID, err)
		return
	}
	var resp types.PeerToPeerResponse
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.IsReceived() || resp.ReceivedID != msg.MessageID {
		d.log.Errorf("delivery: invalid peer response from %s for message %d", conn.PeerAddr, msg.MessageID)
		return
	}
	if err := d.store.MarkAsReceived(msg.ConnectionID, msg.MessageID); err != nil {
		d.log.Errorf("delivery: marking message %d received: %v", msg.MessageID, err)
	}
}

// deliverBulk is deliverMessage's counterpart for a batch of pending
// messages, used by RetryUnreceived.
func (d *Dispatcher) deliverBulk(peerID uint32, msgs []types.Message) {
	if len(msgs) == 0 {
		return
	}
	conn, err := d.store.GetConnectionByPeerID(peerID)
	if err != nil {
		d.log.Errorf("delivery: no connection for peer_id %d: %v", peerID, err)
		return
	}

	peerConn, err := d.connectPeer(conn.PeerAddr)
	if err != nil {
		d.log.Warnf("could not connect to peer %d at %s: %v", peerID, conn.PeerAddr, err)
		if serr := d.store.SetPeerOnline(peerID, false); serr != nil {
			d.log.Errorf("delivery: recording peer %d offline: %v", peerID, serr)
		}
		return
	}
	defer peerConn.Close()
	if err := d.store.SetPeerOnline(peerID, true); err != nil {
		d.log.Errorf("delivery: recording peer %d online: %v", peerID, err)
	}

	pms := make([]types.PeerMessage, 0, len(msgs))
	for _, msg := range msgs {
		content, err := d.store.LoadContent(msg)
		if err != nil {
			d.log.Errorf("delivery: loading content for message %d: %v", msg.MessageID, err)
			return
		}
		pms = append(pms, types.PeerMessage{
			SelfID:    conn.SelfID,
			MessageID: msg.MessageID,
			TimeSent:  types.NewTimestamp(types.FormatTime(msg.TimeSent)),
			Content:   content,
		})
	}

	writer := bufio.NewWriter(peerConn)
	if err := sendInitial(writer, types.NewBulkMessageRequest(pms)); err != nil {
		d.log.Errorf("delivery: sending bulk message to %s: %v", conn.PeerAddr, err)
		return
	}
	d.log.Infof("sent %d bulk messages to peer at %s", len(pms), conn.PeerAddr)

	reader := bufio.NewReader(peerConn)
	raw, err := codec.ReadFrame(reader)
	if err != nil {
		d.log.Errorf("delivery: no bulk response from peer %d: %v", peerID, err)
		return
	}
	var resp types.PeerToPeerResponse
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.IsBulkReceived() {
		d.log.Errorf("delivery: invalid bulk peer response from %s", conn.PeerAddr)
		return
	}
	if err := d.store.BulkMarkAsReceived(conn.ConnectionID, resp.BulkReceivedID); err != nil {
		d.log.Errorf("delivery: bulk marking messages received: %v", err)
	}
}

// retryUnreceived implements spec §4.8's RetryUnreceived contract. It
// short-circuits on a stale offline flag rather than probing the peer
// itself: the UI is expected to PingPeer first, a deliberately load-bearing
// sequencing per spec §9.
func (d *Dispatcher) retryUnreceived(peerID uint32) {
	online, err := d.store.PeerOnline(peerID)
	if err != nil {
		d.log.Errorf("retry_unreceived: peer %d: %v", peerID, err)
		return
	}
	if !online {
		d.log.Infof("retry_unreceived: peer %d is offline, not retrying", peerID)
		return
	}
	pending, err := d.store.GetUnreceivedFor(peerID)
	if err != nil {
		d.log.Errorf("retry_unreceived: listing pending messages for peer %d: %v", peerID, err)
		return
	}
	d.deliverBulk(peerID, pending)
}

// pingPeer implements spec §4.6's PingPeer: a bare connect attempt used
// only to refresh the online flag.
func (d *Dispatcher) pingPeer(peerID uint32) {
	conn, err := d.store.GetConnectionByPeerID(peerID)
	if err != nil {
		d.log.Errorf("ping_peer: no connection for peer_id %d: %v", peerID, err)
		return
	}
	peerConn, err := d.connectPeer(conn.PeerAddr)
	if err != nil {
		d.log.Warnf("ping_peer: peer %d unreachable at %s: %v", peerID, conn.PeerAddr, err)
		if serr := d.store.SetPeerOnline(peerID, false); serr != nil {
			d.log.Errorf("ping_peer: recording peer %d offline: %v", peerID, serr)
		}
		return
	}
	peerConn.Close()
	if err := d.store.SetPeerOnline(peerID, true); err != nil {
		d.log.Errorf("ping_peer: recording peer %d online: %v", peerID, err)
	}
}

// establishPeerConnection implements spec §4.6's EstablishPeerConnection:
// allocate a peer_id, propose a connection, and insert the row once the
// peer accepts. Connect failures are warn-logged only; per spec §9 the UI
// is not told directly and must infer failure via a ListPeerConnections
// refresh that never arrives.
func (d *Dispatcher) establishPeerConnection(peerAddr, localAddr string) {
	peerConn, err := d.connectPeer(peerAddr)
	if err != nil {
		d.log.Warnf("could not connect to peer %s: %v", peerAddr, err)
		return
	}
	defer peerConn.Close()

	peerID, err := d.ids.Next()
	if err != nil {
		d.log.Errorf("establish_peer_connection: allocating peer_id: %v", err)
		return
	}

	writer := bufio.NewWriter(peerConn)
	propose := types.NewProposeConnection(peerID, d.cfg.SelfName, localAddr)
	if err := sendInitial(writer, propose); err != nil {
		d.log.Errorf("establish_peer_connection: proposing to %s: %v", peerAddr, err)
		return
	}
	d.log.Infof("proposed connection to %s", peerAddr)

	reader := bufio.NewReader(peerConn)
	raw, err := codec.ReadFrame(reader)
	if err != nil {
		d.log.Errorf("establish_peer_connection: no response from %s: %v", peerAddr, err)
		return
	}
	var resp types.PeerToPeerResponse
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.IsAcceptConnection() {
		d.log.Errorf("establish_peer_connection: invalid response from %s", peerAddr)
		return
	}

	c := types.Connection{
		PeerID:   peerID,
		SelfID:   resp.AcceptPeerID,
		PeerName: resp.AcceptPeerName,
		PeerAddr: resp.AcceptPeerAddr,
	}
	if _, err := d.store.InsertConnection(c); err != nil {
		d.log.Errorf("establish_peer_connection: inserting connection for %s: %v", peerAddr, err)
		return
	}
	d.pushRefresh(types.RefreshConnection())
}
