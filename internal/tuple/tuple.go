// tuple.go
//
// This source file is part of the FoundationDB open source project
//
// Copyright 2013-2024 Apple Inc. and the FoundationDB project authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package tuple encodes small tuples of integers and strings into byte keys
// whose lexicographic order matches the element-wise order of the tuples.
// A packed tuple is a byte prefix of every tuple it is a prefix of, which is
// what makes prefix range scans and ordered map keys possible.
//
// Only int64, int, string and nested Tuple elements are supported.
package tuple

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Element is one member of a Tuple.
type Element interface{}

// Tuple is an ordered list of elements.
type Tuple []Element

const (
	stringCode  = 0x02
	nestedCode  = 0x05
	intZeroCode = 0x14
	posIntEnd   = 0x1c
	negIntStart = 0x0c
)

var sizeLimits = []uint64{
	1<<(0*8) - 1,
	1<<(1*8) - 1,
	1<<(2*8) - 1,
	1<<(3*8) - 1,
	1<<(4*8) - 1,
	1<<(5*8) - 1,
	1<<(6*8) - 1,
	1<<(7*8) - 1,
	1<<(8*8) - 1,
}

// byteLength returns the number of bytes needed to store the magnitude u.
func byteLength(u uint64) int {
	var n int
	for sizeLimits[n] < u {
		n++
	}
	return n
}

func appendInt(b []byte, i int64) []byte {
	if i == 0 {
		return append(b, intZeroCode)
	}

	var raw [8]byte
	var n int
	if i > 0 {
		n = byteLength(uint64(i))
		b = append(b, byte(intZeroCode+n))
		binary.BigEndian.PutUint64(raw[:], uint64(i))
	} else {
		// Negative values are stored as the one's complement of the
		// magnitude so that larger magnitudes sort first.
		n = byteLength(uint64(-i))
		b = append(b, byte(intZeroCode-n))
		binary.BigEndian.PutUint64(raw[:], uint64(int64(sizeLimits[n])+i))
	}

	return append(b, raw[8-n:]...)
}

func appendString(b []byte, s string) []byte {
	b = append(b, stringCode)
	for i := 0; i < len(s); i++ {
		b = append(b, s[i])
		if s[i] == 0x00 {
			b = append(b, 0xff)
		}
	}
	return append(b, 0x00)
}

func appendTuple(b []byte, t Tuple, nested bool) []byte {
	if nested {
		b = append(b, nestedCode)
	}

	for i, e := range t {
		switch e := e.(type) {
		case Tuple:
			b = appendTuple(b, e, true)
		case int64:
			b = appendInt(b, e)
		case int:
			b = appendInt(b, int64(e))
		case string:
			b = appendString(b, e)
		default:
			panic(fmt.Sprintf("unencodable element at index %d (%v, type %T)", i, t[i], t[i]))
		}
	}

	if nested {
		b = append(b, 0x00)
	}
	return b
}

// Pack returns a new byte slice encoding the tuple. Pack panics on elements
// other than int64, int, string or Tuple.
func (t Tuple) Pack() []byte {
	return appendTuple(make([]byte, 0, 2*len(t)+1), t, false)
}

// Range returns the half-open key range [begin, end) containing the packed
// form of every tuple that strictly extends t.
func (t Tuple) Range() ([]byte, []byte) {
	p := t.Pack()
	return concat(p, 0x00), concat(p, 0xff)
}

func decodeInt(b []byte) (int64, int, error) {
	if b[0] == intZeroCode {
		return 0, 1, nil
	}

	n := int(b[0]) - intZeroCode
	neg := n < 0
	if neg {
		n = -n
	}
	if len(b) < n+1 {
		return 0, 0, fmt.Errorf("insufficient bytes to decode integer of length %d", n)
	}

	var raw [8]byte
	copy(raw[8-n:], b[1:n+1])
	ret := int64(binary.BigEndian.Uint64(raw[:]))
	if neg {
		ret -= int64(sizeLimits[n])
	}

	return ret, n + 1, nil
}

func decodeString(b []byte) (string, int, error) {
	var out bytes.Buffer
	for i := 1; i < len(b); i++ {
		if b[i] != 0x00 {
			out.WriteByte(b[i])
			continue
		}
		if i+1 < len(b) && b[i+1] == 0xff {
			out.WriteByte(0x00)
			i++
			continue
		}
		return out.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func decodeTuple(b []byte, nested bool) (Tuple, int, error) {
	t := Tuple{}

	var i int
	for i < len(b) {
		var el Element
		var off int
		var err error

		switch {
		case b[i] == 0x00 && nested:
			return t, i + 1, nil
		case b[i] == stringCode:
			el, off, err = decodeString(b[i:])
		case negIntStart <= b[i] && b[i] <= posIntEnd:
			el, off, err = decodeInt(b[i:])
		case b[i] == nestedCode:
			el, off, err = decodeTuple(b[i+1:], true)
			off++
		default:
			err = fmt.Errorf("unknown typecode %02x", b[i])
		}
		if err != nil {
			return nil, i, fmt.Errorf("decoding tuple element at position %d: %w", i, err)
		}

		t = append(t, el)
		i += off
	}

	if nested {
		return nil, i, fmt.Errorf("unterminated nested tuple")
	}
	return t, i, nil
}

// Unpack returns the tuple encoded by b, or an error if b is not a packed
// tuple.
func Unpack(b []byte) (Tuple, error) {
	t, _, err := decodeTuple(b, false)
	return t, err
}

func concat(a []byte, b ...byte) []byte {
	r := make([]byte, len(a)+len(b))
	copy(r, a)
	copy(r[len(a):], b)
	return r
}
