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

// Package client implements the NAT'd side of the tunnel: one Controller
// owning one TCP connection to the server, and one Share per configured
// local service, each maintaining a pool of parked Worker connections.
package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/forwarder"
	"github.com/sabouaram/zrp/internal/rendezvous"
	"github.com/sabouaram/zrp/internal/zlog"
)

// localUpstream dials the share's local service; it is the Forwarder's
// Upstream when a worker socket (the Downstream) has just been popped.
type localUpstream struct {
	host string
	port uint16
}

func (u *localUpstream) GetSocket(ctx context.Context, _ net.Addr) (net.Conn, error) {
	d := net.Dialer{}
	return d.DialContext(ctx, "tcp", net.JoinHostPort(u.host, strconv.Itoa(int(u.port))))
}

// workerDownstream is the Forwarder's Downstream: it pops the next
// activated worker socket handed over by a worker's visit_tcp_share
// handling, and tells the owning share so it can run its replenishment
// check (§4.5).
type workerDownstream struct {
	queue     *rendezvous.Queue[net.Conn]
	onConsume func()
}

func (d *workerDownstream) GetSocket(ctx context.Context) (net.Conn, net.Addr, error) {
	c, err := d.queue.Wait(ctx)
	if err != nil {
		return nil, nil, err
	}
	if d.onConsume != nil {
		d.onConsume()
	}
	return c, c.RemoteAddr(), nil
}

func (d *workerDownstream) TryStop() {
	d.queue.Close()
}

// Share is one named tunnel: it runs a Forwarder joining activated
// worker sockets (Downstream) with fresh dials to the local service
// (Upstream), and keeps the idle worker pool toward the server topped
// up at WorkerCountLow.
type Share struct {
	ID         string
	ServerHost string
	ServerPort uint16
	ClientUUID string

	WorkerCountInitial int
	WorkerCountLow     int
	WorkerCountMore    int

	log   logger.Logger
	queue *rendezvous.Queue[net.Conn]
	dow   *workerDownstream
	fwd   *forwarder.Forwarder[*localUpstream, *workerDownstream]

	workers  libatm.Map[int]
	nextID   atomic.Int64
	nr       atomic.Int64
	closing  libatm.Value[bool]
	stopOnce sync.Once
}

// New builds a Share for localHost:localPort, not yet running.
func New(id, serverHost string, serverPort uint16, clientUUID, localHost string, localPort uint16, workerCountInitial, workerCountLow, workerCountMore int, log logger.Logger) *Share {
	q := rendezvous.New[net.Conn]()

	s := &Share{
		ID:                 id,
		ServerHost:         serverHost,
		ServerPort:         serverPort,
		ClientUUID:         clientUUID,
		WorkerCountInitial: workerCountInitial,
		WorkerCountLow:     workerCountLow,
		WorkerCountMore:    workerCountMore,
		log:                zlog.For(log, "client-share", "share_id", id),
		queue:              q,
		workers:            libatm.NewMapAny[int](),
		closing:            libatm.NewValue[bool](),
	}

	s.dow = &workerDownstream{queue: q, onConsume: s.onWorkerConsumed}
	ups := &localUpstream{host: localHost, port: localPort}
	s.fwd = forwarder.New[*localUpstream, *workerDownstream](ups, s.dow, s.log)

	return s
}

// Run dials the initial worker pool then blocks running the Forwarder
// until it fails or the share is stopped.
func (s *Share) Run(ctx context.Context) error {
	s.dialInitialWorkers(ctx)
	return s.fwd.Run(ctx)
}

func (s *Share) dialInitialWorkers(ctx context.Context) {
	for i := 0; i < s.WorkerCountInitial; i++ {
		if err := s.dialWorker(ctx); err != nil {
			if s.log != nil {
				s.log.Warning("initial worker dial failed", err)
			}
			return
		}
	}
}

// onWorkerConsumed implements the "schedule a replenishment check"
// behaviour of §4.5: it runs synchronously with the consuming Forwarder
// goroutine, but the dial loop it may trigger runs on its own goroutine
// so the Forwarder keeps pulling from the queue.
func (s *Share) onWorkerConsumed() {
	if s.closing.Load() {
		return
	}
	if s.NrWorkers() >= s.WorkerCountLow {
		return
	}
	go s.replenish(context.Background())
}

func (s *Share) replenish(ctx context.Context) {
	s.pruneGone()

	for i := 0; i < s.WorkerCountMore; i++ {
		if s.closing.Load() {
			return
		}
		if err := s.dialWorker(ctx); err != nil {
			if s.log != nil {
				s.log.Warning("replenishment worker dial failed", err)
			}
			return
		}
	}
}

func (s *Share) pruneGone() {
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

func (s *Share) dialWorker(ctx context.Context) error {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.ServerHost, strconv.Itoa(int(s.ServerPort))))
	if err != nil {
		return err
	}

	id := s.allocID()
	w := newWorker(s.ID, id, conn, s.queue, zlog.For(s.log, "client-worker", "worker_id", id))

	s.workers.Store(id, w)
	s.nr.Add(1)

	go func() {
		_ = w.Run(ctx)
		s.nr.Add(-1)
	}()

	return nil
}

func (s *Share) allocID() int {
	return int(s.nextID.Add(1))
}

// NrWorkers returns the live worker count, matching the original's
// constructor/destructor-maintained nr_workers.
func (s *Share) NrWorkers() int {
	return int(s.nr.Load())
}

// TryStop marks the share closing, tears down the Forwarder and the
// rendezvous queue, then try-stops every live worker.
func (s *Share) TryStop() {
	s.stopOnce.Do(func() {
		s.closing.Store(true)
		s.fwd.TryStop()
		s.queue.Close()

		s.workers.Range(func(_ int, val any) bool {
			if w, ok := val.(*Worker); ok {
				w.TryStop()
			}
			return true
		})
	})
}
