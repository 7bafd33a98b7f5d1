package core

import (
	"bufio"
	"net"
	"sync"

	"github.com/nkct/ap2pmsg/pkg/ap2p/codec"
)

// uiLink is the attached UI's single writer sink: response frames from the
// UI handler and refresh frames from any peer handler are serialized
// through the same mutex, so the two never interleave on the wire, per
// spec §5's single mandatory inter-thread shared resource.
type uiLink struct {
	mu     sync.Mutex
	writer *bufio.Writer
	addr   string
}

func newUILink(conn net.Conn) *uiLink {
	return &uiLink{writer: bufio.NewWriter(conn), addr: conn.RemoteAddr().String()}
}

func (u *uiLink) write(v interface{}) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return codec.WriteJSON(u.writer, v)
}
