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

// Package pipe splices two connected sockets in both directions until
// either end closes, the Go counterpart of the asio coroutine pipe that
// joins a public visitor's socket with an activated worker's socket.
package pipe

import (
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/sabouaram/zrp/logger"
)

// bufferSize is the scratch buffer used by each half-pipe, matching the
// 8 KiB pipe_buffer_size of the original implementation.
const bufferSize = 8192

// Pipe joins lhs and rhs until both half-duplex copies have exited.
type Pipe struct {
	lhs net.Conn
	rhs net.Conn
	log logger.Logger

	once     sync.Once
	stopping bool
	mu       sync.Mutex
}

// New returns a Pipe ready to Run.
func New(lhs, rhs net.Conn, log logger.Logger) *Pipe {
	return &Pipe{lhs: lhs, rhs: rhs, log: log}
}

// Run spawns both half-pipes and blocks until both have exited.
func (p *Pipe) Run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.halfPipe(p.lhs, p.rhs)
	}()
	go func() {
		defer wg.Done()
		p.halfPipe(p.rhs, p.lhs)
	}()

	wg.Wait()
}

// TryStop idempotently closes both sockets, which unblocks any in-flight
// reads on either half-pipe.
func (p *Pipe) TryStop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()

		_ = p.lhs.Close()
		_ = p.rhs.Close()
	})
}

func (p *Pipe) halfPipe(src, dst net.Conn) {
	buf := make([]byte, bufferSize)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				p.handleError(werr)
				return
			}
		}

		if err != nil {
			if isGracefulClose(err) {
				if tc, ok := dst.(interface{ CloseWrite() error }); ok {
					_ = tc.CloseWrite()
				}
				return
			}
			p.handleError(err)
			return
		}
	}
}

func isGracefulClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ENOTCONN) {
		return true
	}
	return false
}

func (p *Pipe) handleError(err error) {
	p.mu.Lock()
	already := p.stopping
	p.mu.Unlock()

	if already {
		if p.log != nil {
			p.log.Debug("pipe half closing during shutdown", err)
		}
		return
	}

	if p.log != nil {
		p.log.Warning("pipe half failed, stopping pipe", err)
	}
	p.TryStop()
}
