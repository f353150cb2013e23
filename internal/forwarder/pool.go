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

package forwarder

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/sabouaram/zrp/logger"
)

// Pool runs a fixed number of Forwarder instances side by side and waits
// for all of them to stop, surfacing the first error. A zero or
// negative limit defaults to GOMAXPROCS.
type Pool[U Upstream, D Downstream] struct {
	limit      int
	forwarders []*Forwarder[U, D]
}

// NewPool builds limit forwarders, one per call to make,
// so each forwarder instance gets its own independent Upstream/Downstream
// pair (e.g. its own dedicated rendezvous queue subscriber).
func NewPool[U Upstream, D Downstream](limit int, log logger.Logger, make func() (U, D)) *Pool[U, D] {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	p := &Pool[U, D]{limit: limit}
	for i := 0; i < limit; i++ {
		ups, dow := make()
		p.forwarders = append(p.forwarders, New[U, D](ups, dow, log))
	}
	return p
}

// Run starts every forwarder and blocks until the first one fails (or
// ctx is cancelled), at which point it try-stops the rest and returns
// the triggering error.
func (p *Pool[U, D]) Run(ctx context.Context) error {
	grp, gctx := errgroup.WithContext(ctx)

	for _, f := range p.forwarders {
		f := f
		grp.Go(func() error {
			return f.Run(gctx)
		})
	}

	go func() {
		<-gctx.Done()
		p.TryStop()
	}()

	return grp.Wait()
}

// TryStop try-stops every forwarder in the pool.
func (p *Pool[U, D]) TryStop() {
	for _, f := range p.forwarders {
		f.TryStop()
	}
}

// OpenSessions sums the live session count across every forwarder in the
// pool.
func (p *Pool[U, D]) OpenSessions() int {
	n := 0
	for _, f := range p.forwarders {
		n += f.OpenSessions()
	}
	return n
}
