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

package client

import (
	"context"
	"net"
	"sync"
	"time"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/rendezvous"
)

// pingDeadline is the client-side recv ping deadline (§6): a worker
// idling this long without a message from the server proactively sends
// a ping.
const pingDeadline = 20 * time.Second

// Worker is one parked control connection for a share: it hellos, idles
// while pinging the server on silence, and on visit_tcp_share hands its
// socket to the share's rendezvous queue as an activated worker.
type Worker struct {
	shareID string
	id      int
	conn    net.Conn
	log     logger.Logger
	queue   *rendezvous.Queue[net.Conn]

	visited  libatm.Value[bool]
	stopping libatm.Value[bool]
	gone     libatm.Value[bool]
	once     sync.Once
}

func newWorker(shareID string, id int, conn net.Conn, queue *rendezvous.Queue[net.Conn], log logger.Logger) *Worker {
	return &Worker{
		shareID:  shareID,
		id:       id,
		conn:     conn,
		log:      log,
		queue:    queue,
		visited:  libatm.NewValue[bool](),
		stopping: libatm.NewValue[bool](),
		gone:     libatm.NewValue[bool](),
	}
}

// Run sends the worker hello then idles until it is visited, pinged
// into failure, or stopped. It returns once the worker's socket has
// either been handed off to the share's queue or closed.
func (w *Worker) Run(ctx context.Context) error {
	defer w.gone.Store(true)

	if err := protocol.WriteFrame(w.conn, protocol.TcpShareWorkerHello{TcpShareID: w.shareID, WorkerID: w.id}); err != nil {
		w.TryStop()
		return err
	}

	arm := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)
	go w.pingActor(arm, done)

	fr := protocol.NewFrameReader(w.conn)

	for {
		select {
		case arm <- struct{}{}:
		default:
		}

		msgType, body, err := fr.ReadFrame()
		if err != nil {
			w.TryStop()
			return err
		}

		switch msgType {
		case protocol.TypeVisitTcpShare:
			var m protocol.VisitTcpShare
			if err := protocol.Unmarshal(body, &m); err != nil {
				w.TryStop()
				return err
			}

			w.visited.Store(true)

			if err := protocol.WriteFrame(w.conn, protocol.VisitConfirmed{}); err != nil {
				w.TryStop()
				return err
			}

			if err := w.queue.Provide(ctx, w.conn); err != nil {
				w.TryStop()
				return err
			}
			return nil

		case protocol.TypePong:
			continue

		default:
			err := protocol.Expect(msgType, protocol.TypeVisitTcpShare, protocol.TypePong)
			w.TryStop()
			return err
		}
	}
}

// pingActor fires a ping if a 20s window passes with no message
// received; it re-arms only when Run signals the receiver began waiting
// again, matching §4.5's "reset the deadline to infinity" wording.
func (w *Worker) pingActor(arm <-chan struct{}, done <-chan struct{}) {
	var timerC <-chan time.Time

	for {
		select {
		case <-arm:
			t := time.NewTimer(pingDeadline)
			timerC = t.C

		case <-timerC:
			timerC = nil
			if w.visited.Load() || w.stopping.Load() {
				continue
			}
			if err := protocol.WriteFrame(w.conn, protocol.Ping{}); err != nil {
				w.TryStop()
				return
			}

		case <-done:
			return
		}
	}
}

// IsGone reports whether Run has returned, the registry-pruning
// replacement for a weak-reference expiry check (§5 Go translation).
func (w *Worker) IsGone() bool {
	return w.gone.Load()
}

// TryStop idempotently closes the worker's socket.
func (w *Worker) TryStop() {
	w.once.Do(func() {
		w.stopping.Store(true)
		_ = w.conn.Close()
	})
}
