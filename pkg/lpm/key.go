/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package lpm

// Key is the constraint shared by the fixed-width address types understood
// by the tries. Keys are unsigned integers with most-significant-bit-first
// semantics: byte-order conversion happens in the parsing layer, never here.
//
// The constraint is sealed on purpose: the engine supports exactly the two
// widths that exist on the wire, Key32 for IPv4 and Key128 for IPv6.
type Key[K any] interface {
	// shl shifts the key left by n bits, 0 <= n <= width.
	shl(n int) K
	// top returns the n most significant bits as a symbol, 1 <= n <= 8.
	top(n int) uint8
	isZero() bool
	width() int
}

// Key32 is a 32 bit address, e.g. an IPv4 address in host bit order.
type Key32 uint32

func (k Key32) shl(n int) Key32 {
	if n >= 32 {
		return 0
	}
	return k << n
}

func (k Key32) top(n int) uint8 {
	return uint8(k >> (32 - n))
}

func (k Key32) isZero() bool { return k == 0 }

func (Key32) width() int { return 32 }

// Key128 is a 128 bit address, e.g. an IPv6 address in host bit order.
// Hi carries the 64 most significant bits.
type Key128 struct {
	Hi, Lo uint64
}

func (k Key128) shl(n int) Key128 {
	switch {
	case n >= 128:
		return Key128{}
	case n >= 64:
		return Key128{Hi: k.Lo << (n - 64)}
	case n == 0:
		return k
	default:
		return Key128{Hi: k.Hi<<n | k.Lo>>(64-n), Lo: k.Lo << n}
	}
}

func (k Key128) top(n int) uint8 {
	return uint8(k.Hi >> (64 - n))
}

func (k Key128) isZero() bool { return k.Hi == 0 && k.Lo == 0 }

func (Key128) width() int { return 128 }
