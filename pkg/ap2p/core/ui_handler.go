package core

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/nkct/ap2pmsg/pkg/ap2p/codec"
	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// handleFrontend serves the attached UI's requests one at a time, per spec
// §4.6. It owns link's lifetime: on return the UI registration is cleared
// and the socket is closed.
func (d *Dispatcher) handleFrontend(conn net.Conn, link *uiLink) {
	addr := conn.RemoteAddr().String()
	localAddr := conn.LocalAddr().String()
	defer func() {
		conn.Close()
		d.clearUILink(link)
	}()

	if err := link.write(types.NewLinkingResultOK()); err != nil {
		d.log.Warnf("confirming link for frontend at %s: %v", addr, err)
		return
	}
	d.log.Infof("confirmed linking for frontend at %s", addr)

	reader := bufio.NewReader(conn)
	for {
		raw, err := codec.ReadFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.log.Infof("frontend at %s has closed the connection", addr)
			} else {
				d.log.Warnf("reading from frontend at %s: %v", addr, err)
			}
			return
		}

		var req types.BackendToFrontendRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			d.log.Errorf("invalid request from %s: %v", addr, err)
			link.write(types.NewInvalidRequest())
			continue
		}
		d.log.Debugf("received BackendToFrontendRequest::%s from %s", req.Kind(), addr)
		d.dispatchFrontendRequest(link, req, localAddr)
	}
}

func (d *Dispatcher) dispatchFrontendRequest(link *uiLink, req types.BackendToFrontendRequest, localAddr string) {
	switch {
	case req.IsMessagePeer():
		d.handleMessagePeer(link, req)
	case req.IsListPeerConnections():
		d.handleListPeerConnections(link)
	case req.IsListMessages():
		d.handleListMessages(link, req)
	case req.IsEstablishPeerConnection():
		d.establishPeerConnection(req.EstablishPeerAddr, localAddr)
	case req.IsRetryUnreceived():
		d.retryUnreceived(req.PeerID())
	case req.IsPingPeer():
		d.pingPeer(req.PeerID())
	case req.IsKillRefresher():
		if err := link.write(types.RefreshKill()); err != nil {
			d.log.Warnf("writing KillRefresher signal: %v", err)
		}
	case req.IsLinkingRequest():
		d.log.Errorf("attempted to link an already linked frontend")
	default:
		d.log.Warnf("unhandled frontend request kind %q", req.Kind())
	}
}

// handleMessagePeer implements spec §4.6's MessagePeer: persist the
// message as Pending, refresh the UI immediately so it becomes visible,
// then attempt delivery.
func (d *Dispatcher) handleMessagePeer(link *uiLink, req types.BackendToFrontendRequest) {
	m, err := d.store.NewMessage(req.MessagePeerID, req.MessageContent)
	if err != nil {
		d.log.Errorf("message_peer: creating message for peer %d: %v", req.MessagePeerID, err)
		return
	}
	d.pushRefresh(types.RefreshMessage())
	d.deliverMessage(req.MessagePeerID, m)
}

func (d *Dispatcher) handleListPeerConnections(link *uiLink) {
	cs, err := d.store.GetConnections()
	if err != nil {
		d.log.Errorf("list_peer_connections: %v", err)
		link.write(types.NewInvalidRequest())
		return
	}
	if err := link.write(types.NewPeerConnectionsListed(cs)); err != nil {
		d.log.Warnf("writing PeerConnectionsListed: %v", err)
		return
	}
	d.log.Infof("listed peer connections")
}

func (d *Dispatcher) handleListMessages(link *uiLink, req types.BackendToFrontendRequest) {
	since, err := types.ParseTime(req.ListSince.String())
	if err != nil {
		d.log.Errorf("list_messages: parsing since: %v", err)
		link.write(types.NewInvalidRequest())
		return
	}
	until, err := types.ParseTime(req.ListUntil.String())
	if err != nil {
		d.log.Errorf("list_messages: parsing until: %v", err)
		link.write(types.NewInvalidRequest())
		return
	}
	ms, err := d.store.GetMessages(req.ListPeerID, since, until)
	if err != nil {
		d.log.Errorf("list_messages: %v", err)
		link.write(types.NewInvalidRequest())
		return
	}
	if err := link.write(types.NewMessagesListed(ms)); err != nil {
		d.log.Warnf("writing MessagesListed: %v", err)
		return
	}
	d.log.Infof("listed messages")
}
