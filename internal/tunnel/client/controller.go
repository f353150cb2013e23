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
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
	"github.com/sabouaram/zrp/internal/zconfig"
)

// ShareSpec pairs a configured share with the share_id and remote_port
// the server needs to hear in client_hello.
type ShareSpec struct {
	ID         string
	LocalHost  string
	LocalPort  uint16
	RemotePort uint16
}

// Controller owns the single control connection to the server: it
// hellos, dials each share's initial worker pool, then idles pinging
// the server on silence until the connection fails or it is stopped.
type Controller struct {
	cfg        zconfig.ClientConfig
	clientUUID string
	log        logger.Logger

	conn   net.Conn
	shares map[string]*Share

	stopOnce sync.Once
	stopping bool
	mu       sync.Mutex
}

// New builds a Controller from a loaded client config; the uuid is a
// fresh random v4 per §4.6.
func New(cfg zconfig.ClientConfig, log logger.Logger) *Controller {
	return &Controller{
		cfg:        cfg,
		clientUUID: uuid.New().String(),
		log:        log,
		shares:     make(map[string]*Share),
	}
}

// Run connects, exchanges hello, brings every share's worker pool up,
// then blocks servicing the control connection until it fails or ctx is
// done. On return every owned share has been try-stopped.
func (c *Controller) Run(ctx context.Context) error {
	defer c.TryStop()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(c.cfg.ServerHost, strconv.Itoa(int(c.cfg.ServerPort))))
	if err != nil {
		return err
	}
	c.conn = conn

	hello := protocol.ClientHello{
		Version:    protocol.ProtocolVersion,
		ClientUUID: c.clientUUID,
		TcpShares:  c.shareList(),
	}
	if err := protocol.WriteFrame(c.conn, hello); err != nil {
		return err
	}

	fr := protocol.NewFrameReader(c.conn)
	msgType, body, err := fr.ReadFrame()
	if err != nil {
		return err
	}
	if e := protocol.Expect(msgType, protocol.TypeServerHello); e != nil {
		return e
	}

	var sh protocol.ServerHello
	if err := protocol.Unmarshal(body, &sh); err != nil {
		return err
	}
	if sh.Version != protocol.ProtocolVersion && c.log != nil {
		c.log.Warning("server protocol version differs", fmt.Errorf("server=%d local=%d", sh.Version, protocol.ProtocolVersion))
	}

	c.buildShares()

	var wg sync.WaitGroup
	for _, s := range c.shares {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil && c.log != nil {
				c.log.Warning("share stopped", err)
			}
		}()
	}

	runErr := c.idleLoop(ctx, fr)

	wg.Wait()
	return runErr
}

func (c *Controller) shareList() []protocol.TcpShare {
	out := make([]protocol.TcpShare, 0, len(c.cfg.TcpShares))
	for id, sh := range c.cfg.TcpShares {
		out = append(out, protocol.TcpShare{ID: id, Port: sh.RemotePort})
	}
	return out
}

func (c *Controller) buildShares() {
	for id, sh := range c.cfg.TcpShares {
		s := New(id, c.cfg.ServerHost, c.cfg.ServerPort, c.clientUUID, sh.LocalHost, sh.LocalPort,
			c.cfg.WorkerCountInitial, c.cfg.WorkerCountLow, c.cfg.WorkerCountMore, c.log)
		c.shares[id] = s
	}
}

// idleLoop mirrors the worker's receiver/ping-actor pair (§4.6): it
// waits for pong messages, arming a 20s send-a-ping-on-silence timer on
// each iteration.
func (c *Controller) idleLoop(ctx context.Context, fr *protocol.FrameReader) error {
	arm := make(chan struct{}, 1)
	done := make(chan struct{})
	defer close(done)
	go c.pingActor(arm, done)

	for {
		select {
		case arm <- struct{}{}:
		default:
		}

		msgType, _, err := fr.ReadFrame()
		if err != nil {
			return err
		}
		if e := protocol.Expect(msgType, protocol.TypePong); e != nil {
			return e
		}
	}
}

func (c *Controller) pingActor(arm <-chan struct{}, done <-chan struct{}) {
	var timerC <-chan time.Time

	for {
		select {
		case <-arm:
			t := time.NewTimer(pingDeadline)
			timerC = t.C

		case <-timerC:
			timerC = nil
			c.mu.Lock()
			stopping := c.stopping
			c.mu.Unlock()
			if stopping {
				continue
			}
			if err := protocol.WriteFrame(c.conn, protocol.Ping{}); err != nil {
				c.TryStop()
				return
			}

		case <-done:
			return
		}
	}
}

// TryStop closes the control connection and try-stops every owned
// share, per §4.6's "on any error, stops itself and all its shares".
func (c *Controller) TryStop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close()
		}
		for _, s := range c.shares {
			s.TryStop()
		}
	})
}
