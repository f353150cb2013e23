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

// Package protocol implements the zrp wire protocol: a length-framed
// JSON message envelope carrying a closed set of control messages
// exchanged between client and server.
package protocol

// ProtocolVersion is always sent as-is and, per the design notes, only
// ever produces a soft warning on mismatch - it is never used to
// negotiate behaviour.
const ProtocolVersion = 0

// Message tags, used as the wire's msg_type discriminator.
const (
	TypeClientHello         = "client_hello"
	TypeTcpShareWorkerHello = "tcp_share_worker_hello"
	TypePing                = "ping"
	TypeVisitConfirmed      = "visit_confirmed"
	TypeServerHello         = "server_hello"
	TypePong                = "pong"
	TypeVisitTcpShare       = "visit_tcp_share"
)

// Message is implemented by every wire message; Type returns the tag
// injected into the msg_type field on encode.
type Message interface {
	Type() string
}

// TcpShare describes one share announced by a client in its hello.
type TcpShare struct {
	ID   string `json:"id"`
	Port uint16 `json:"port"`
}

// TcpEndpoint is the public peer address handed to an activated worker.
type TcpEndpoint struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// ClientHello is sent once, by the client, on a fresh control connection.
type ClientHello struct {
	Version    int        `json:"version"`
	ClientUUID string     `json:"client_uuid"`
	TcpShares  []TcpShare `json:"tcp_shares"`
}

func (ClientHello) Type() string { return TypeClientHello }

// TcpShareWorkerHello is sent once, by a client worker, on a fresh
// worker connection.
type TcpShareWorkerHello struct {
	TcpShareID string `json:"tcp_share_id"`
	WorkerID   int    `json:"worker_id"`
}

func (TcpShareWorkerHello) Type() string { return TypeTcpShareWorkerHello }

// Ping is sent by whichever side is the liveness-probe initiator on a
// given connection kind (the client controller/worker towards the
// server, and vice versa is Pong).
type Ping struct{}

func (Ping) Type() string { return TypePing }

// VisitConfirmed acknowledges a VisitTcpShare, handing the worker socket
// back to the server as the upstream leg of a pipe.
type VisitConfirmed struct{}

func (VisitConfirmed) Type() string { return TypeVisitConfirmed }

// ServerHello is the server's first message on every control connection.
type ServerHello struct {
	Version int    `json:"version"`
	Welcome string `json:"welcome"`
}

func (ServerHello) Type() string { return TypeServerHello }

// Pong answers a Ping.
type Pong struct{}

func (Pong) Type() string { return TypePong }

// VisitTcpShare tells an idle worker it has been chosen to carry the
// next public session.
type VisitTcpShare struct {
	Epoch uint64      `json:"epoch"`
	Peer  TcpEndpoint `json:"peer"`
}

func (VisitTcpShare) Type() string { return TypeVisitTcpShare }
