package core

import (
	"bufio"
	"net"

	"github.com/nkct/ap2pmsg/pkg/ap2p/codec"
	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// handlePeer executes one inbound peer request per spec §4.5. A peer
// connection carries exactly one request and is closed afterward; there is
// no state kept between frames.
func (d *Dispatcher) handlePeer(conn net.Conn, req types.PeerToPeerRequest) {
	defer conn.Close()
	writer := bufio.NewWriter(conn)
	peerAddr := conn.RemoteAddr().String()
	localAddr := conn.LocalAddr().String()

	switch {
	case req.IsProposeConnection():
		d.handleProposeConnection(writer, req, peerAddr, localAddr)
	case req.IsMessage():
		d.handleIncomingMessage(writer, req.Message, peerAddr, localAddr)
	case req.IsBulkMessage():
		d.handleIncomingBulkMessage(writer, req.BulkMessages, peerAddr, localAddr)
	default:
		d.log.Warnf("peer request from %s has unhandled kind %q", peerAddr, req.Kind())
	}
}

func (d *Dispatcher) handleProposeConnection(writer *bufio.Writer, req types.PeerToPeerRequest, peerAddr, localAddr string) {
	peerID, err := d.ids.Next()
	if err != nil {
		d.log.Errorf("allocating peer_id for propose from %s: %v", peerAddr, err)
		return
	}
	c := types.Connection{
		PeerID:   peerID,
		SelfID:   req.ProposeSelfID,
		PeerName: req.ProposePeerName,
		PeerAddr: req.ProposePeerAddr,
	}
	if _, err := d.store.InsertConnection(c); err != nil {
		d.log.Errorf("inserting connection for propose from %s: %v", peerAddr, err)
		return
	}
	if err := codec.WriteJSON(writer, types.NewAcceptConnection(peerID, d.cfg.SelfName, localAddr)); err != nil {
		d.log.Warnf("replying to propose from %s: %v", peerAddr, err)
		return
	}
	d.log.Infof("accepted peer connection from %s", peerAddr)

	if req.ProposePeerAddr != localAddr {
		d.pushRefresh(types.RefreshConnection())
	}
}

func (d *Dispatcher) handleIncomingMessage(writer *bufio.Writer, m types.PeerMessage, peerAddr, localAddr string) {
	if err := codec.WriteJSON(writer, types.NewReceived(m.MessageID)); err != nil {
		d.log.Warnf("replying to message %d from %s: %v", m.MessageID, peerAddr, err)
		return
	}
	d.log.Infof("confirmed receiving message %d from %s", m.MessageID, peerAddr)
	d.receiveMessage(localAddr, m)
}

func (d *Dispatcher) handleIncomingBulkMessage(writer *bufio.Writer, ms []types.PeerMessage, peerAddr, localAddr string) {
	ids := make([]uint32, len(ms))
	for i, m := range ms {
		ids[i] = m.MessageID
	}
	if err := codec.WriteJSON(writer, types.NewBulkReceived(ids)); err != nil {
		d.log.Warnf("replying to bulk message from %s: %v", peerAddr, err)
		return
	}
	if len(ms) == 0 {
		d.log.Warnf("received empty bulk message from %s", peerAddr)
	}
	d.log.Infof("confirmed receiving %d bulk messages from %s", len(ms), peerAddr)
	for _, m := range ms {
		d.receiveMessage(localAddr, m)
	}
}

// receiveMessage implements spec §4.5's receive_message contract. A
// message is self-authored when the connection that m.SelfID resolves to
// (by construction, m.SelfID equals this node's own peer_id for that
// connection) has this node's local address as its peer_addr and this
// node's own outbound copy already exists under it; in that case it is a
// loopback delivery and only needs marking received. Any other message is
// a genuine receipt and is inserted fresh.
func (d *Dispatcher) receiveMessage(localAddr string, m types.PeerMessage) {
	conn, err := d.store.GetConnectionByPeerID(m.SelfID)
	if err != nil {
		d.log.Errorf("receive_message: no connection for self_id %d: %v", m.SelfID, err)
		return
	}

	if conn.PeerAddr == localAddr {
		if _, err := d.store.GetMessage(conn.ConnectionID, m.MessageID); err == nil {
			if err := d.store.MarkAsReceived(conn.ConnectionID, m.MessageID); err != nil {
				d.log.Errorf("receive_message: marking loopback message %d received: %v", m.MessageID, err)
			}
			return
		}
	}

	sentAt, err := types.ParseTime(m.TimeSent.String())
	if err != nil {
		d.log.Errorf("receive_message: parsing time_sent for message %d: %v", m.MessageID, err)
		return
	}
	if _, err := d.store.InsertMessage(conn.ConnectionID, m.MessageID, sentAt, m.Content); err != nil {
		d.log.Errorf("receive_message: inserting message %d: %v", m.MessageID, err)
		return
	}
	d.pushRefresh(types.RefreshMessage())
}
