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

package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/sabouaram/zrp/errors"

	"github.com/sabouaram/zrp/internal/zerr"
)

// MaxFrameBody is the maximum JSON body size, in bytes, accepted on any
// zrp connection. Frames declaring a larger length fail the connection
// with zerr.MsgTooBig before the body is read.
const MaxFrameBody = 8192

// readChunk is the buffered reader's working size; it does not bound
// the frame itself, only how many bytes are pulled from the socket per
// underlying Read.
const readChunk = 4096

// FrameReader reads one length-framed message at a time from a stream.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r with a FrameReader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, readChunk)}
}

// ReadFrame reads the 8-byte big-endian length header and the JSON body
// that follows, returning the decoded msg_type tag and the raw body
// bytes so the caller can unmarshal into the concrete type it expects.
func (f *FrameReader) ReadFrame() (msgType string, body []byte, err error) {
	var hdr [8]byte
	if _, err = io.ReadFull(f.r, hdr[:]); err != nil {
		return "", nil, err
	}

	ln := binary.BigEndian.Uint64(hdr[:])
	if ln > MaxFrameBody {
		return "", nil, zerr.MsgTooBig.Error(fmt.Errorf("declared frame length %d exceeds %d", ln, MaxFrameBody))
	}

	body = make([]byte, ln)
	if _, err = io.ReadFull(f.r, body); err != nil {
		return "", nil, err
	}

	msgType, err = peekType(body)
	if err != nil {
		return "", nil, err
	}

	return msgType, body, nil
}

// Expect fails with zerr.UnexpectedMsgType unless msgType is one of the
// given expected tags, mirroring unmarshal_msg's closed-set dispatch.
func Expect(msgType string, expected ...string) errors.Error {
	for _, e := range expected {
		if e == msgType {
			return nil
		}
	}
	return zerr.UnexpectedMsgType.Error(fmt.Errorf("got %q, expected one of %v", msgType, expected))
}

func peekType(body []byte) (string, error) {
	var env struct {
		MsgType string `json:"msg_type"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", err
	}
	return env.MsgType, nil
}

// Marshal serialises m to JSON and injects its msg_type tag.
func Marshal(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	var obj map[string]json.RawMessage
	if err = json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}

	tag, err := json.Marshal(m.Type())
	if err != nil {
		return nil, err
	}
	obj["msg_type"] = tag

	return json.Marshal(obj)
}

// WriteFrame encodes m and writes the 8-byte length header and body as
// a single scatter write.
func WriteFrame(w io.Writer, m Message) error {
	body, err := Marshal(m)
	if err != nil {
		return err
	}

	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(body)))

	_, err = (net.Buffers{hdr[:], body}).WriteTo(w)
	return err
}

// Unmarshal decodes body into v (a pointer to one of the Message
// structs). It is a thin wrapper kept for symmetry with Marshal.
func Unmarshal(body []byte, v any) error {
	return json.Unmarshal(body, v)
}
