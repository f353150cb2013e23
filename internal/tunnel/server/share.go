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
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/forwarder"
	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/rendezvous"
	"github.com/sabouaram/zrp/internal/zlog"
)

// listenerDownstream is the Forwarder's Downstream for a server share:
// each accepted public connection is one session to pair with an
// activated worker.
type listenerDownstream struct {
	ln net.Listener
}

func (d *listenerDownstream) GetSocket(ctx context.Context) (net.Conn, net.Addr, error) {
	conn, err := d.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.RemoteAddr(), nil
}

func (d *listenerDownstream) TryStop() {
	_ = d.ln.Close()
}

// idleWorkerUpstream is the Forwarder's Upstream for a server share: it
// pops the next idle worker and activates it, returning its raw socket
// once visit_confirmed has been observed.
type idleWorkerUpstream struct {
	share *Share
}

func (u *idleWorkerUpstream) GetSocket(ctx context.Context, peer net.Addr) (net.Conn, error) {
	w, err := u.share.idle.Wait(ctx)
	if err != nil {
		return nil, err
	}

	host, portStr, err := net.SplitHostPort(peer.String())
	if err != nil {
		host, portStr = peer.String(), "0"
	}
	var port uint16
	if p, e := strconv.Atoi(portStr); e == nil {
		port = uint16(p)
	}

	epoch := uint64(time.Now().UnixMicro())
	return w.Visit(protocol.TcpEndpoint{IP: host, Port: port}, epoch)
}

// Share listens on (sharingHost, remotePort) and joins each accepted
// public session with the next idle worker it activates.
type Share struct {
	ID          string
	SharingHost string
	RemotePort  uint16

	log  logger.Logger
	ln   net.Listener
	idle *rendezvous.Queue[*Worker]
	fwd  *forwarder.Forwarder[*idleWorkerUpstream, *listenerDownstream]

	workers  libatm.Map[int]
	nextID   atomic.Int64
	stopped  libatm.Value[bool]
	stopOnce sync.Once
}

// Listen binds the share's public port and returns it ready to Run.
func Listen(id, sharingHost string, remotePort uint16, log logger.Logger) (*Share, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(sharingHost, strconv.Itoa(int(remotePort))))
	if err != nil {
		return nil, err
	}

	slog := zlog.For(log, "server-share", "share_id", id)

	s := &Share{
		ID:          id,
		SharingHost: sharingHost,
		RemotePort:  remotePort,
		log:         slog,
		ln:          ln,
		idle:        rendezvous.New[*Worker](),
		workers:     libatm.NewMapAny[int](),
		stopped:     libatm.NewValue[bool](),
	}

	dow := &listenerDownstream{ln: ln}
	ups := &idleWorkerUpstream{share: s}
	s.fwd = forwarder.New[*idleWorkerUpstream, *listenerDownstream](ups, dow, slog)

	return s, nil
}

// Run blocks running the share's Forwarder until it fails or the share
// is stopped.
func (s *Share) Run(ctx context.Context) error {
	return s.fwd.Run(ctx)
}

// Addr returns the share's bound public listener address.
func (s *Share) Addr() net.Addr {
	return s.ln.Addr()
}

// AllocWorkerID hands out a monotonically increasing worker id for this
// share, mirroring the client side's own id allocator.
func (s *Share) AllocWorkerID() int {
	return int(s.nextID.Add(1))
}

// GotWorker registers w and enqueues it as idle, the server-side
// counterpart of §4.7's "schedule share.got_worker(worker)".
func (s *Share) GotWorker(ctx context.Context, w *Worker) {
	s.workers.Store(w.id, w)
	go func() {
		if err := s.idle.Provide(ctx, w); err != nil && s.log != nil {
			s.log.Debug("idle worker enqueue cancelled", err)
		}
	}()
}

// PruneGone drops entries for workers whose Run has already returned.
func (s *Share) PruneGone() {
	var gone []int
	s.workers.Range(func(key int, val any) bool {
		if w, ok := val.(*Worker); ok && w.IsGone() {
			gone = append(gone, key)
		}
		return true
	})
	for _, id := range gone {
		s.workers.Delete(id)
	}
}

// IsGone reports whether TryStop has already run, the registry-pruning
// replacement for a weak-reference expiry check (§5 Go translation) -
// a new client_hello re-creating this share id is only a duplicate
// (I1) while IsGone is false.
func (s *Share) IsGone() bool {
	return s.stopped.Load()
}

// TryStop closes the idle queue, try-stops every registered worker, and
// tears down the Forwarder (which also closes the listener).
func (s *Share) TryStop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.idle.Close()
		s.workers.Range(func(_ int, val any) bool {
			if w, ok := val.(*Worker); ok {
				w.TryStop()
			}
			return true
		})
		s.fwd.TryStop()
	})
}
