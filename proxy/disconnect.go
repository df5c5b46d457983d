package proxy

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamrelay/pkg/relay"
)

// errClientGone is the abort reason for sessions whose client disconnected.
var errClientGone = errors.New("client disconnected")

// watchDisconnect aborts s as soon as the client closes its connection.
//
// While a stream is relayed fasthttp only reads the response body, so a
// client leaving during an idle upstream would go unnoticed until the next
// write. The connection is marked close and read directly instead: a client
// of a streamed response sends nothing more, so any read result means it is
// gone. Connections that are not sockets, such as the in-memory ones used by
// fiber's test harness, are not watched.
func watchDisconnect(c *fiber.Ctx, s *relay.Session) {
	conn, ok := socketConn(c.Context().Conn())
	if !ok {
		return
	}
	c.Context().SetConnectionClose()

	// Unblock the watcher once the session ends. fasthttp closes the
	// connection after the response, which would also do it.
	s.OnClose(func(*relay.Error) {
		_ = conn.SetReadDeadline(time.Now())
	})

	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := conn.Read(buf); err != nil {
				if s.Abort(errClientGone) {
					s.Logger().Info("client disconnected", "error", err)
				}
				return
			}
		}
	}()
}

func socketConn(conn net.Conn) (net.Conn, bool) {
	switch conn.(type) {
	case *net.TCPConn, *net.UnixConn:
		return conn, true
	default:
		return nil, false
	}
}

// sessionBody is the response body stream of a relayed session. fasthttp
// closes it when it stops reading, including after a failed write to the
// client, which aborts the session.
type sessionBody struct {
	*io.PipeReader
	session *relay.Session
}

func (b sessionBody) Close() error {
	b.session.Abort(errClientGone)
	return b.PipeReader.Close()
}
