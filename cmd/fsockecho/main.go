// Command fsockecho is a minimal example echo server: bind, accept
// connections, echo every inbound frame back to its sender until the peer
// goes away.
package main

import (
	"flag"
	"log"

	"github.com/orizon-net/fsock"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "tcp://127.0.0.1:9242", "address to bind, tcp://host:port")
	flag.Parse()

	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("fsockecho: building logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	cfg := fsock.DefaultConfig()
	cfg.Logger = zlog

	ln, err := fsock.Bind(*addr, cfg)
	if err != nil {
		zlog.Fatal("bind failed", zap.String("addr", *addr), zap.Error(err))
	}
	zlog.Info("listening", zap.String("addr", *addr))

	for ev := range ln.Events() {
		switch ev.Kind {
		case fsock.KindNewConnection:
			go serve(zlog, ev.Conn)
		default:
			zlog.Warn("unexpected event on listener", zap.Stringer("kind", ev.Kind))
		}
	}
}

func serve(zlog *zap.Logger, conn *fsock.Socket) {
	remote := conn.RemoteAddr().String()
	zlog.Info("accepted connection", zap.String("remote", remote))
	defer conn.Free()

	for ev := range conn.Events() {
		switch ev.Kind {
		case fsock.KindFrame:
			payload := ev.Frame.Payload()
			if err := conn.Send(fsock.NewFrame(payload)); err != nil {
				zlog.Warn("echo send failed", zap.String("remote", remote), zap.Error(err))
				return
			}
		case fsock.KindClose:
			zlog.Info("connection closed", zap.String("remote", remote))
			return
		default:
			zlog.Warn("unexpected event on connection", zap.Stringer("kind", ev.Kind))
		}
	}
}
