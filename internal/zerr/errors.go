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

// Package zerr declares the error kinds of the tunnel control plane as
// registered errors.CodeError values, in the style of the rest of the
// golib error registry (one min-code block per package, one getMessage
// switch).
package zerr

import "github.com/sabouaram/zrp/errors"

const (
	// BadArgs reports a malformed CLI invocation or config file.
	BadArgs errors.CodeError = iota + errors.MinAvailable

	// UnexpectedMsgType reports a msg_type not in the expected set for
	// the channel that received it.
	UnexpectedMsgType

	// MsgTooBig reports a frame whose declared length exceeds the
	// 8192 byte body limit.
	MsgTooBig

	// DuplicateClient reports a client_hello whose client_uuid already
	// names a live controller.
	DuplicateClient

	// DuplicateTcpShare reports a client_hello announcing a share id
	// that already names a live share.
	DuplicateTcpShare

	// TcpShareClosed reports a tcp_share_worker_hello naming a share
	// that does not exist or has already been torn down.
	TcpShareClosed

	// Cancelled reports an operation aborted by a rendezvous queue
	// close or a component try-stop.
	Cancelled
)

var isCodeError = false

func IsCodeError() bool {
	return isCodeError
}

func init() {
	isCodeError = errors.ExistInMapMessage(BadArgs)
	errors.RegisterIdFctMessage(BadArgs, getMessage)
}

func getMessage(code errors.CodeError) (message string) {
	switch code {
	case BadArgs:
		return "invalid command line arguments"
	case UnexpectedMsgType:
		return "unexpected msg_type for this channel"
	case MsgTooBig:
		return "frame body exceeds the maximum size"
	case DuplicateClient:
		return "a controller is already registered for this client uuid"
	case DuplicateTcpShare:
		return "a tcp share is already registered under this id"
	case TcpShareClosed:
		return "tcp share is closed or does not exist"
	case Cancelled:
		return "operation cancelled"
	}

	return ""
}
