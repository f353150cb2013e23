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
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	libatm "github.com/sabouaram/zrp/atomic"
	libctx "github.com/sabouaram/zrp/context"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/zconfig"
	"github.com/sabouaram/zrp/internal/zerr"
	"github.com/sabouaram/zrp/internal/zlog"
)

// Server is the top-level accept loop plus the three registries of
// §4.10: ctrls (client uuid -> Controller), tcp_shares (share id ->
// Share), sockets (hello-sockets currently being promoted).
type Server struct {
	cfg zconfig.ServerConfig
	log logger.Logger

	ln net.Listener

	ctrls   libctx.Config[string]
	shares  libctx.Config[string]
	sockets libctx.Config[int]

	nextSocketID atomic.Int64

	stopping libatm.Value[bool]
	stopOnce sync.Once
}

// New builds a Server from a loaded server config, not yet listening.
func New(cfg zconfig.ServerConfig, log logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		ctrls:    libctx.New[string](context.Background()),
		shares:   libctx.New[string](context.Background()),
		sockets:  libctx.New[int](context.Background()),
		stopping: libatm.NewValue[bool](),
	}
}

// Run binds the control-channel listener and accepts connections until
// it fails or the server is stopped, promoting each one on its own
// goroutine (§4.7).
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.BindHost, strconv.Itoa(int(s.cfg.BindPort))))
	if err != nil {
		return err
	}
	s.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return nil
			}
			return err
		}

		id := s.allocSocketID()
		hs := newHelloSocket(conn, s, zlog.For(s.log, "hello-socket"))
		s.sockets.Store(id, hs)

		go func(id int) {
			hs.Run(ctx)
			s.sockets.Delete(id)
		}(id)
	}
}

func (s *Server) allocSocketID() int {
	return int(s.nextSocketID.Add(1))
}

func (s *Server) handleClientHello(ctx context.Context, conn net.Conn, m protocol.ClientHello) error {
	if v, ok := s.ctrls.Load(m.ClientUUID); ok {
		if c, ok2 := v.(*Controller); ok2 && !c.IsGone() {
			return zerr.DuplicateClient.Error(fmt.Errorf("client_uuid %s already registered", m.ClientUUID))
		}
	}

	for _, ts := range m.TcpShares {
		if v, ok := s.shares.Load(ts.ID); ok {
			if sh, ok2 := v.(*Share); ok2 && !sh.IsGone() {
				return zerr.DuplicateTcpShare.Error(fmt.Errorf("tcp_share %s already registered", ts.ID))
			}
		}
	}

	created := make([]*Share, 0, len(m.TcpShares))
	for _, ts := range m.TcpShares {
		sh, err := Listen(ts.ID, s.cfg.SharingHost, ts.Port, s.log)
		if err != nil {
			for _, c := range created {
				c.TryStop()
			}
			return err
		}
		s.shares.Store(ts.ID, sh)
		created = append(created, sh)

		go func(sh *Share) {
			if err := sh.Run(ctx); err != nil && s.log != nil {
				s.log.Debug("share stopped", err)
			}
			s.shares.Delete(sh.ID)
		}(sh)
	}

	if m.Version != protocol.ProtocolVersion && s.log != nil {
		s.log.Warning("client protocol version differs", fmt.Errorf("client=%d local=%d", m.Version, protocol.ProtocolVersion))
	}

	ctrl := newController(conn, m.ClientUUID, s.cfg.Welcome, created, zlog.For(s.log, "server-controller", "client_uuid", m.ClientUUID))
	s.ctrls.Store(m.ClientUUID, ctrl)

	go func() {
		if err := ctrl.Run(ctx); err != nil && s.log != nil {
			s.log.Debug("controller stopped", err)
		}
		s.ctrls.Delete(m.ClientUUID)
	}()

	return nil
}

func (s *Server) handleWorkerHello(ctx context.Context, conn net.Conn, m protocol.TcpShareWorkerHello) error {
	v, ok := s.shares.Load(m.TcpShareID)
	if !ok {
		return zerr.TcpShareClosed.Error(fmt.Errorf("tcp_share %s not found", m.TcpShareID))
	}
	sh, ok := v.(*Share)
	if !ok {
		return zerr.TcpShareClosed.Error(fmt.Errorf("tcp_share %s not found", m.TcpShareID))
	}

	w := NewWorker(m.TcpShareID, m.WorkerID, conn, zlog.For(s.log, "server-worker", "share_id", m.TcpShareID, "worker_id", m.WorkerID))
	go w.Run()
	sh.GotWorker(ctx, w)

	return nil
}

// TryStop closes the acceptor and try-stops every registered controller
// and share; promotion-stage sockets are closed directly.
func (s *Server) TryStop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)

		if s.ln != nil {
			_ = s.ln.Close()
		}

		s.sockets.Walk(func(_ int, val any) bool {
			if hs, ok := val.(*helloSocket); ok {
				_ = hs.conn.Close()
			}
			return true
		})

		s.ctrls.Walk(func(_ string, val any) bool {
			if c, ok := val.(*Controller); ok {
				c.TryStop()
			}
			return true
		})

		s.shares.Walk(func(_ string, val any) bool {
			if sh, ok := val.(*Share); ok {
				sh.TryStop()
			}
			return true
		})
	})
}
