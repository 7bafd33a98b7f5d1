// Package core implements the listener/dispatcher, the inbound peer
// handler, the UI request handler, the refresh channel and the delivery
// engine: everything that sits between an accepted socket and the
// persistent store.
package core

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/nkct/ap2pmsg/pkg/ap2p/codec"
	"github.com/nkct/ap2pmsg/pkg/ap2p/definition"
	"github.com/nkct/ap2pmsg/pkg/ap2p/store"
	"github.com/nkct/ap2pmsg/pkg/ap2p/types"
)

// Dispatcher owns the listening socket's accept loop, the single
// attached-UI registration, the store and the id allocator. One Dispatcher
// per running backend.
type Dispatcher struct {
	store *store.Store
	ids   *store.IDAllocator
	cfg   definition.Config
	log   definition.Logger

	uiMu sync.Mutex
	ui   *uiLink
}

// NewDispatcher builds a Dispatcher over an already-opened store.
func NewDispatcher(s *store.Store, ids *store.IDAllocator, cfg definition.Config, log definition.Logger) *Dispatcher {
	return &Dispatcher{store: s, ids: ids, cfg: cfg, log: log}
}

// Serve accepts connections on ln until it returns an error, handling each
// on its own goroutine. Errors while handling an accepted connection are
// logged by that goroutine and do not stop the loop; only Accept itself
// returning an error ends Serve.
func (d *Dispatcher) Serve(ln net.Listener) error {
	d.log.Infof("listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("core: accept: %w", err)
		}
		go d.handleConn(conn)
	}
}

// handleConn reads exactly one InitialRequest frame and routes the
// connection to the peer handler or the UI handler per spec §4.2. There is
// no re-identification: the first frame fixes the socket's role for its
// lifetime.
func (d *Dispatcher) handleConn(conn net.Conn) {
	reader := bufio.NewReader(conn)
	raw, err := codec.ReadFrame(reader)
	if err != nil {
		d.log.Warnf("cannot read initial request from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	var initial types.InitialRequest
	if err := json.Unmarshal(raw, &initial); err != nil {
		d.log.Warnf("incorrect initial request from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	if initial.IsPeer() {
		d.log.Infof("new peer connection: %s", conn.RemoteAddr())
		go d.handlePeer(conn, initial.Peer)
		return
	}
	d.handleInitialFrontend(conn, initial.Frontend)
}

// handleInitialFrontend implements the dispatcher's half of §4.2 branch 2:
// reject a second UI link, otherwise register this socket as the attached
// UI and spawn its handler.
func (d *Dispatcher) handleInitialFrontend(conn net.Conn, req types.BackendToFrontendRequest) {
	if !req.IsLinkingRequest() {
		d.log.Warnf("incorrect request from %s: expected LinkingRequest", conn.RemoteAddr())
		conn.Close()
		return
	}

	d.uiMu.Lock()
	if d.ui != nil {
		existing := d.ui.addr
		d.uiMu.Unlock()
		writer := bufio.NewWriter(conn)
		reason := fmt.Sprintf("already serving a frontend at %s", existing)
		codec.WriteJSON(writer, types.NewLinkingResultErr(reason))
		d.log.Infof("refused linking request from frontend at %s", conn.RemoteAddr())
		conn.Close()
		return
	}
	link := newUILink(conn)
	d.ui = link
	d.uiMu.Unlock()

	d.log.Infof("new frontend connection: %s", conn.RemoteAddr())
	go d.handleFrontend(conn, link)
}

// currentUILink returns the attached UI link, or nil if none is attached.
func (d *Dispatcher) currentUILink() *uiLink {
	d.uiMu.Lock()
	defer d.uiMu.Unlock()
	return d.ui
}

// clearUILink detaches link if it is still the registered UI, a no-op if a
// newer link has since replaced it.
func (d *Dispatcher) clearUILink(link *uiLink) {
	d.uiMu.Lock()
	defer d.uiMu.Unlock()
	if d.ui == link {
		d.ui = nil
	}
}

// pushRefresh best-effort writes a refresh frame to the attached UI, if
// any. A write failure is logged and the link is considered dead, per
// spec §4.7.
func (d *Dispatcher) pushRefresh(r types.RefreshRequest) {
	link := d.currentUILink()
	if link == nil {
		return
	}
	if err := link.write(r); err != nil {
		d.log.Warnf("refresh write to %s failed, dropping ui link: %v", link.addr, err)
		d.clearUILink(link)
	}
}
