/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package protocol describes the network protocols zrp addresses can bind
// to or dial, the way net.Dial/net.Listen name them, with the marshaling
// glue needed to carry a NetworkProtocol through JSON, YAML, TOML and a
// viper config.
package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkProtocol is one of the network name strings accepted by net.Dial
// and net.Listen.
type NetworkProtocol uint8

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkUnix
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkIP
	NetworkIP4
	NetworkIP6
	NetworkUnixGram
)

var names = map[NetworkProtocol]string{
	NetworkUnix:     "unix",
	NetworkTCP:      "tcp",
	NetworkTCP4:     "tcp4",
	NetworkTCP6:     "tcp6",
	NetworkUDP:      "udp",
	NetworkUDP4:     "udp4",
	NetworkUDP6:     "udp6",
	NetworkIP:       "ip",
	NetworkIP4:      "ip4",
	NetworkIP6:      "ip6",
	NetworkUnixGram: "unixgram",
}

var byName = func() map[string]NetworkProtocol {
	m := make(map[string]NetworkProtocol, len(names))
	for p, s := range names {
		m[s] = p
	}
	return m
}()

func trim(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	s = strings.Trim(s, "\"")
	s = strings.Trim(s, "`")
	return s
}

// Parse returns the NetworkProtocol named by s, trimming surrounding
// whitespace and quotes and matching case-insensitively. It returns
// NetworkEmpty for anything it does not recognise.
func Parse(s string) NetworkProtocol {
	p, ok := byName[strings.ToLower(trim(s))]
	if !ok {
		return NetworkEmpty
	}
	return p
}

// ParseBytes is Parse over a []byte.
func ParseBytes(b []byte) NetworkProtocol {
	return Parse(string(b))
}

// ParseInt64 returns the NetworkProtocol whose Int64 value is v, or
// NetworkEmpty if v is out of range.
func ParseInt64(v int64) NetworkProtocol {
	if v <= 0 || v > math.MaxUint8 {
		return NetworkEmpty
	}
	p := NetworkProtocol(v)
	if _, ok := names[p]; !ok {
		return NetworkEmpty
	}
	return p
}

// String returns the protocol's net.Dial-compatible name, or "" if p is
// not a valid protocol.
func (p NetworkProtocol) String() string {
	return names[p]
}

// Code is an alias for String, kept for symmetry with the other typed
// enums in this module.
func (p NetworkProtocol) Code() string {
	return p.String()
}

// Int returns 0 for an invalid protocol, its ordinal otherwise.
func (p NetworkProtocol) Int() int {
	if _, ok := names[p]; !ok {
		return 0
	}
	return int(p)
}

func (p NetworkProtocol) Int64() int64 { return int64(p.Int()) }
func (p NetworkProtocol) Uint() uint   { return uint(p.Int()) }
func (p NetworkProtocol) Uint64() uint64 { return uint64(p.Int()) }

// MarshalJSON encodes p as its quoted protocol name, or `""` if invalid.
func (p NetworkProtocol) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

// UnmarshalJSON decodes a quoted protocol name. An unrecognised name
// decodes to NetworkEmpty without error.
func (p *NetworkProtocol) UnmarshalJSON(data []byte) error {
	*p = Parse(string(data))
	return nil
}

// MarshalYAML returns the protocol's name as a plain YAML scalar string.
func (p NetworkProtocol) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

// UnmarshalYAML decodes a YAML scalar node carrying a protocol name.
func (p *NetworkProtocol) UnmarshalYAML(node *yaml.Node) error {
	*p = Parse(node.Value)
	return nil
}

// MarshalTOML returns the protocol's name, or an empty slice if invalid.
func (p NetworkProtocol) MarshalTOML() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalTOML accepts a []byte or string carrying a protocol name.
func (p *NetworkProtocol) UnmarshalTOML(v interface{}) error {
	switch t := v.(type) {
	case []byte:
		*p = ParseBytes(t)
		return nil
	case string:
		*p = Parse(t)
		return nil
	default:
		return fmt.Errorf("protocol: value %v is not in valid format", v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p NetworkProtocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *NetworkProtocol) UnmarshalText(text []byte) error {
	*p = ParseBytes(text)
	return nil
}

// MarshalCBOR renders the protocol as its bare name bytes, matching the
// textual encoding used for JSON/TOML/Text in this package.
func (p NetworkProtocol) MarshalCBOR() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalCBOR is the reverse of MarshalCBOR.
func (p *NetworkProtocol) UnmarshalCBOR(data []byte) error {
	*p = ParseBytes(data)
	return nil
}
