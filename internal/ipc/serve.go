package ipc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"

	"github.com/lanternops/duplexrecorder/internal/logging"
)

var log = logging.L("ipc")

// Handler answers one control-socket request.
type Handler func(Request) Response

// Serve accepts connections on ln until ctx is cancelled, handling one
// request per connection (the CLI always opens a fresh connection per
// call, so no per-connection request loop is needed).
func Serve(ctx context.Context, ln net.Listener, handle Handler) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("control socket accept failed", logging.KeyError, err)
			continue
		}
		go serveConn(conn, handle)
	}
}

func serveConn(conn net.Conn, handle Handler) {
	defer conn.Close()

	req, err := ReadRequest(bufio.NewReader(conn))
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Warn("control socket read failed", logging.KeyError, err)
		}
		return
	}

	resp := handle(req)
	if err := WriteResponse(conn, resp); err != nil {
		log.Warn("control socket write failed", logging.KeyError, err)
	}
}
