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

package protocol

import (
	"fmt"
	"math"
	"reflect"
)

var protocolType = reflect.TypeOf(NetworkProtocol(0))

// ViperDecoderHook returns a mapstructure-compatible decode hook that
// lets a viper config field typed as NetworkProtocol accept either its
// string name or its numeric ordinal. Any other source/target pair is
// passed through unchanged.
func ViperDecoderHook() func(reflect.Type, reflect.Type, interface{}) (interface{}, error) {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != protocolType {
			return data, nil
		}

		switch from.Kind() {
		case reflect.String:
			s, ok := data.(string)
			if !ok {
				return data, nil
			}
			return Parse(s), nil

		case reflect.Int:
			v, ok := data.(int)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Int8:
			v, ok := data.(int8)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Int16:
			v, ok := data.(int16)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Int32:
			v, ok := data.(int32)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Int64:
			v, ok := data.(int64)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(v)

		case reflect.Uint:
			v, ok := data.(uint)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Uint8:
			v, ok := data.(uint8)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Uint16:
			v, ok := data.(uint16)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Uint32:
			v, ok := data.(uint32)
			if !ok {
				return data, nil
			}
			return decodeOrdinal(int64(v))

		case reflect.Uint64:
			v, ok := data.(uint64)
			if !ok {
				return data, nil
			}
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("protocol: invalid value %d", v)
			}
			return decodeOrdinal(int64(v))

		default:
			return data, nil
		}
	}
}

func decodeOrdinal(v int64) (interface{}, error) {
	if v > math.MaxUint16 {
		return nil, fmt.Errorf("protocol: invalid value %d", v)
	}
	p := ParseInt64(v)
	if p == NetworkEmpty {
		return nil, fmt.Errorf("protocol: invalid value %d", v)
	}
	return p, nil
}
