// Command backend runs the peer-to-peer messaging daemon: it opens the
// persistent store, binds the listener, and serves peer and UI
// connections until interrupted.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/nkct/ap2pmsg/pkg/ap2p/core"
	"github.com/nkct/ap2pmsg/pkg/ap2p/definition"
	"github.com/nkct/ap2pmsg/pkg/ap2p/store"

	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults := definition.DefaultConfig()

	app := kingpin.New("ap2pmsg", "Peer-to-peer messaging backend daemon.")
	servAddr := app.Flag("serv-addr", "host:port to bind the listener to").Default(defaults.ServAddr).String()
	dbPath := app.Flag("db-path", "SQLite database file path").Default(defaults.DBPath).String()
	selfName := app.Flag("self-name", "display name sent during handshakes").Default(defaults.SelfName).String()
	peerTimeout := app.Flag("peer-timeout", "outbound peer connect timeout").Default(defaults.PeerTimeout.String()).Duration()
	frontendType := app.Flag("frontend-type", "CLI, WEB, or NONE; consulted only by the out-of-scope UI launcher").
		Default(string(defaults.FrontendType)).Enum("CLI", "WEB", "NONE")

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg := defaults
	cfg.ServAddr = *servAddr
	cfg.DBPath = *dbPath
	cfg.SelfName = *selfName
	cfg.PeerTimeout = *peerTimeout
	cfg.FrontendType = definition.FrontendType(*frontendType)

	log := definition.NewLogger()

	s, err := store.Open(cfg.DBPath, cfg.FilesDir, log)
	if err != nil {
		log.Errorf("opening store: %v", err)
		return 1
	}
	defer s.Close()

	ids := store.NewIDAllocator(cfg.IDSequencePath)

	ln, err := net.Listen("tcp", cfg.ServAddr)
	if err != nil {
		log.Errorf("binding listener on %s: %v", cfg.ServAddr, err)
		return 1
	}
	log.Infof("bound listener on %s", ln.Addr())

	d := core.NewDispatcher(s, ids, cfg, log)
	serveErr := make(chan error, 1)
	go func() { serveErr <- d.Serve(ln) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		log.Errorf("listener stopped: %v", err)
		return 1
	case <-sig:
		log.Infof("received shutdown signal, exiting")
		ln.Close()
		return 0
	}
}
