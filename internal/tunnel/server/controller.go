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
	"sync"
	"time"

	libatm "github.com/sabouaram/zrp/atomic"
	"github.com/sabouaram/zrp/logger"

	"github.com/sabouaram/zrp/internal/protocol"
)

// Controller owns one client's control connection for the client's
// entire lifetime: it sends server_hello, then runs the same
// receiver/sender/deadline shape as a server Worker (§4.9), and owns
// every Share the client announced.
type Controller struct {
	clientUUID string
	welcome    string
	conn       net.Conn
	fr         *protocol.FrameReader
	log        logger.Logger

	shares []*Share

	sendQ      chan protocol.Message
	senderDone chan struct{}
	stopCh     chan struct{}
	stopOnce   sync.Once

	gone libatm.Value[bool]
	once sync.Once
}

func newController(conn net.Conn, clientUUID, welcome string, shares []*Share, log logger.Logger) *Controller {
	return &Controller{
		clientUUID: clientUUID,
		welcome:    welcome,
		conn:       conn,
		fr:         protocol.NewFrameReader(conn),
		log:        log,
		shares:     shares,
		sendQ:      make(chan protocol.Message, 4),
		senderDone: make(chan struct{}),
		stopCh:     make(chan struct{}),
		gone:       libatm.NewValue[bool](),
	}
}

// Run sends server_hello then services the control connection until it
// fails or is stopped, try-stopping every owned share on return.
func (c *Controller) Run(ctx context.Context) error {
	defer c.TryStop()
	defer c.gone.Store(true)

	if err := protocol.WriteFrame(c.conn, protocol.ServerHello{Version: protocol.ProtocolVersion, Welcome: c.welcome}); err != nil {
		return err
	}

	go c.sender()
	err := c.receiver()
	<-c.senderDone
	return err
}

func (c *Controller) receiver() error {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(pingRecvDeadline))

		msgType, _, err := c.fr.ReadFrame()
		if err != nil {
			return err
		}
		if e := protocol.Expect(msgType, protocol.TypePing); e != nil {
			return e
		}

		select {
		case c.sendQ <- protocol.Pong{}:
		case <-c.stopCh:
			return nil
		}
	}
}

func (c *Controller) sender() {
	defer close(c.senderDone)
	for {
		select {
		case m, ok := <-c.sendQ:
			if !ok {
				return
			}
			if err := protocol.WriteFrame(c.conn, m); err != nil {
				c.TryStop()
				return
			}
		case <-c.stopCh:
			return
		}
	}
}

// IsGone reports whether Run has returned.
func (c *Controller) IsGone() bool {
	return c.gone.Load()
}

// TryStop closes the control connection and try-stops every share this
// client announced.
func (c *Controller) TryStop() {
	c.once.Do(func() {
		c.stopOnce.Do(func() { close(c.stopCh) })
		_ = c.conn.Close()

		for _, sh := range c.shares {
			sh.TryStop()
		}
	})
}
