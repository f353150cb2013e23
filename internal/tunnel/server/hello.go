/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package server

import (
	"context"
	"net"
	"time"

	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
)

// helloDeadline bounds how long a freshly accepted connection has to
// send its first (and only promotion) message (§6).
const helloDeadline = 30 * time.Second

// helloSocket is the transient owner of a newly accepted connection
// while it is promoted to either a Controller or a Worker (§4.7).
type helloSocket struct {
	conn net.Conn
	srv  *Server
	log  logger.Logger
}

func newHelloSocket(conn net.Conn, srv *Server, log logger.Logger) *helloSocket {
	return &helloSocket{conn: conn, srv: srv, log: log}
}

// Run reads exactly one message and promotes the connection accordingly.
// On any failure before promotion completes, the connection is closed.
func (h *helloSocket) Run(ctx context.Context) {
	_ = h.conn.SetReadDeadline(time.Now().Add(helloDeadline))

	fr := protocol.NewFrameReader(h.conn)
	msgType, body, err := fr.ReadFrame()
	if err != nil {
		if h.log != nil {
			h.log.Debug("hello socket failed before promotion", err)
		}
		_ = h.conn.Close()
		return
	}

	switch msgType {
	case protocol.TypeClientHello:
		var m protocol.ClientHello
		if err := protocol.Unmarshal(body, &m); err != nil {
			_ = h.conn.Close()
			return
		}
		if err := h.srv.handleClientHello(ctx, h.conn, m); err != nil {
			if h.log != nil {
				h.log.Warning("client_hello rejected", err)
			}
			_ = h.conn.Close()
			return
		}
		_ = h.conn.SetReadDeadline(time.Time{})

	case protocol.TypeTcpShareWorkerHello:
		var m protocol.TcpShareWorkerHello
		if err := protocol.Unmarshal(body, &m); err != nil {
			_ = h.conn.Close()
			return
		}
		if err := h.srv.handleWorkerHello(ctx, h.conn, m); err != nil {
			if h.log != nil {
				h.log.Warning("tcp_share_worker_hello rejected", err)
			}
			_ = h.conn.Close()
			return
		}
		_ = h.conn.SetReadDeadline(time.Time{})

	default:
		if h.log != nil {
			h.log.Warning("unexpected hello message", protocol.Expect(msgType, protocol.TypeClientHello, protocol.TypeTcpShareWorkerHello))
		}
		_ = h.conn.Close()
	}
}
