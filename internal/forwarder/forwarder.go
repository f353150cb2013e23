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

// Package forwarder implements the generic loop that repeatedly pulls a
// downstream socket, obtains a matching upstream socket, and joins both
// through a Pipe - the shape shared by both the client tcp-share (local
// dial as upstream, activated worker as downstream) and the server
// tcp-share (public accept as downstream, activated worker as upstream).
package forwarder

import (
	"context"
	"net"
	"sync/atomic"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/pipe"
)

// Downstream produces the socket that triggers a new forwarding session.
type Downstream interface {
	GetSocket(ctx context.Context) (net.Conn, net.Addr, error)
}

// Upstream produces the matching socket for a downstream session, given
// the downstream peer address (the server's Upstream is free to ignore
// the address; the client's Upstream always ignores it, since it always
// dials the same local service).
type Upstream interface {
	GetSocket(ctx context.Context, peer net.Addr) (net.Conn, error)
}

type tryStoppable interface {
	TryStop()
}

// Forwarder pulls downstream sockets, pairs each with an upstream
// socket, and splices them with a Pipe until the downstream side fails.
type Forwarder[U Upstream, D Downstream] struct {
	ups U
	dow D
	log logger.Logger

	pipes    libatm.Map[int]
	nextID   atomic.Int64
	stopping libatm.Value[bool]
}

// New returns a Forwarder ready to Run.
func New[U Upstream, D Downstream](ups U, dow D, log logger.Logger) *Forwarder[U, D] {
	return &Forwarder[U, D]{
		ups:      ups,
		dow:      dow,
		log:      log,
		pipes:    libatm.NewMapAny[int](),
		stopping: libatm.NewValue[bool](),
	}
}

// Run blocks, accepting downstream sockets and spawning a pipe for each
// one, until Downstream.GetSocket fails (or ctx is cancelled), at which
// point it try-stops every live pipe and returns the triggering error.
func (f *Forwarder[U, D]) Run(ctx context.Context) error {
	for {
		sd, ep, err := f.dow.GetSocket(ctx)
		if err != nil {
			f.TryStop()
			return err
		}

		go f.handleSocket(ctx, sd, ep)
	}
}

func (f *Forwarder[U, D]) allocID() int {
	return int(f.nextID.Add(1))
}

func (f *Forwarder[U, D]) handleSocket(ctx context.Context, sd net.Conn, ep net.Addr) {
	su, err := f.ups.GetSocket(ctx, ep)
	if err != nil {
		if f.log != nil {
			f.log.Warning("upstream dial failed, dropping this session", err)
		}
		_ = sd.Close()
		return
	}

	id := f.allocID()

	p := pipe.New(sd, su, f.log)
	f.pipes.Store(id, p)
	defer f.pipes.Delete(id)

	p.Run()
}

// TryStop try-stops the downstream and upstream sides (when they support
// it) and every live pipe, cascading shutdown to every active session.
func (f *Forwarder[U, D]) TryStop() {
	if f.stopping.Swap(true) {
		return
	}

	if ts, ok := any(f.dow).(tryStoppable); ok {
		ts.TryStop()
	}
	if ts, ok := any(f.ups).(tryStoppable); ok {
		ts.TryStop()
	}

	f.pipes.Range(func(_ int, v any) bool {
		if p, ok := v.(*pipe.Pipe); ok {
			p.TryStop()
		}
		return true
	})
}

// OpenSessions reports how many pipes are currently live, for tests and
// diagnostics.
func (f *Forwarder[U, D]) OpenSessions() int {
	n := 0
	f.pipes.Range(func(_ int, _ any) bool {
		n++
		return true
	})
	return n
}
