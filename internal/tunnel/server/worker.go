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

// Package server implements the publicly reachable side of the tunnel:
// the accept loop, per-client Controllers, per-share listeners, and the
// parked Workers a share activates to carry one public session.
package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/zerr"
)

const (
	// pingRecvDeadline is the server-side recv ping deadline (§6).
	pingRecvDeadline = 60 * time.Second
	// visitDeadline bounds how long an activated worker has to answer
	// visit_tcp_share with visit_confirmed (§6).
	visitDeadline = 20 * time.Second
)

const (
	workerIdle = iota
	workerVisiting
	workerStopped
)

// Worker is a parked control connection belonging to one server-side
// Share: it pings/pongs while idle, and on Visit sends visit_tcp_share,
// waits out visit_confirmed (discarding any racing ping), and returns
// its raw socket to become the upstream leg of a pipe.
type Worker struct {
	shareID string
	id      int
	conn    net.Conn
	fr      *protocol.FrameReader
	log     logger.Logger

	sendQ      chan protocol.Message
	sendQOnce  sync.Once
	senderDone chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once

	receiverStop libatm.Value[bool]
	receiverDone chan struct{}

	confirmed libatm.Value[bool]
	gone      libatm.Value[bool]

	mu    sync.Mutex
	state int
	once  sync.Once
}

// NewWorker wraps an accepted, hello'd connection for shareID.
func NewWorker(shareID string, id int, conn net.Conn, log logger.Logger) *Worker {
	return &Worker{
		shareID:      shareID,
		id:           id,
		conn:         conn,
		fr:           protocol.NewFrameReader(conn),
		log:          log,
		sendQ:        make(chan protocol.Message, 4),
		senderDone:   make(chan struct{}),
		stopCh:       make(chan struct{}),
		receiverDone: make(chan struct{}),
		receiverStop: libatm.NewValue[bool](),
		confirmed:    libatm.NewValue[bool](),
		gone:         libatm.NewValue[bool](),
	}
}

// Run starts the receiver and sender actors and blocks until both have
// exited - on an idle worker that is a fatal read error, the 60s
// deadline firing, or Visit handing the socket off.
func (w *Worker) Run() {
	defer w.gone.Store(true)

	go w.sender()
	w.receiver()
	<-w.senderDone
}

func (w *Worker) receiver() {
	defer close(w.receiverDone)

	for {
		if w.receiverStop.Load() {
			return
		}

		_ = w.conn.SetReadDeadline(time.Now().Add(pingRecvDeadline))

		msgType, _, err := w.fr.ReadFrame()
		if err != nil {
			if w.receiverStop.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if w.tryTransition(workerStopped) {
					w.TryStop()
				}
				return
			}
			w.TryStop()
			return
		}

		if e := protocol.Expect(msgType, protocol.TypePing); e != nil {
			w.TryStop()
			return
		}

		select {
		case w.sendQ <- protocol.Pong{}:
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) sender() {
	defer close(w.senderDone)
	for {
		select {
		case m, ok := <-w.sendQ:
			if !ok {
				return
			}
			if err := protocol.WriteFrame(w.conn, m); err != nil {
				w.TryStop()
				return
			}
		case <-w.stopCh:
			return
		}
	}
}

// Visit activates the worker: it claims it from idle, silences the
// ping receiver, sends visit_tcp_share, then reads directly off the
// socket discarding any racing ping until visit_confirmed arrives (or
// the 20s visit deadline fires), returning the raw connection.
func (w *Worker) Visit(peer protocol.TcpEndpoint, epoch uint64) (net.Conn, error) {
	if !w.tryTransition(workerVisiting) {
		return nil, zerr.Cancelled.Error(fmt.Errorf("server worker %s/%d no longer idle", w.shareID, w.id))
	}

	w.stopReceiver()

	_ = w.conn.SetReadDeadline(time.Now().Add(visitDeadline))

	select {
	case w.sendQ <- protocol.VisitTcpShare{Epoch: epoch, Peer: peer}:
	case <-w.stopCh:
		return nil, zerr.Cancelled.Error(fmt.Errorf("server worker %s/%d stopped during visit", w.shareID, w.id))
	}
	w.closeSendQ()
	<-w.senderDone

	for {
		msgType, _, err := w.fr.ReadFrame()
		if err != nil {
			w.TryStop()
			return nil, err
		}

		switch msgType {
		case protocol.TypePing:
			continue

		case protocol.TypeVisitConfirmed:
			w.confirmed.Store(true)
			_ = w.conn.SetReadDeadline(time.Time{})
			return w.conn, nil

		default:
			err := protocol.Expect(msgType, protocol.TypePing, protocol.TypeVisitConfirmed)
			w.TryStop()
			return nil, err
		}
	}
}

// stopReceiver signals the receiver to exit and blocks until it has,
// re-asserting the immediate read deadline on a short tick so a
// receiver that slips past its receiverStop check and re-arms the 60s
// ping deadline right before Visit's own SetReadDeadline call still
// gets unblocked promptly instead of riding out the full 60s.
func (w *Worker) stopReceiver() {
	w.receiverStop.Store(true)
	for {
		_ = w.conn.SetReadDeadline(time.Now())
		select {
		case <-w.receiverDone:
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func (w *Worker) tryTransition(to int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == workerStopped {
		return false
	}
	if to == workerVisiting && w.state != workerIdle {
		return false
	}
	w.state = to
	return true
}

func (w *Worker) closeSendQ() {
	w.sendQOnce.Do(func() {
		close(w.sendQ)
	})
}

// IsGone reports whether Run has returned.
func (w *Worker) IsGone() bool {
	return w.gone.Load()
}

// TryStop idempotently tears the worker down: closes its socket and
// signals both actors to exit via stopCh.
func (w *Worker) TryStop() {
	w.once.Do(func() {
		w.mu.Lock()
		w.state = workerStopped
		w.mu.Unlock()

		w.stopOnce.Do(func() { close(w.stopCh) })
		_ = w.conn.Close()
	})
}
