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

// Package cidr decodes textual addresses and CIDR blocks into the binary
// (key, length) form the lpm engine consumes. This is the only place where
// address families and byte order are resolved; the engine itself never
// sees text.
package cidr

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/flatrie/flatrie/pkg/lpm"
)

// ErrAddressFamilyMismatch reports an address of the wrong family for the
// requested key width, or an exact-match parse that carries a partial mask.
var ErrAddressFamilyMismatch = errors.New("address family mismatch")

// Key32FromAddr converts an IPv4 (or 4-in-6 mapped) address to a Key32.
func Key32FromAddr(addr netip.Addr) (lpm.Key32, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, fmt.Errorf("%w: %s is not IPv4", ErrAddressFamilyMismatch, addr)
	}
	b := addr.As4()
	return lpm.Key32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])), nil
}

// Key128FromAddr converts an IPv6 address to a Key128.
func Key128FromAddr(addr netip.Addr) (lpm.Key128, error) {
	if !addr.Is6() || addr.Is4In6() {
		return lpm.Key128{}, fmt.Errorf("%w: %s is not IPv6", ErrAddressFamilyMismatch, addr)
	}
	b := addr.As16()
	var k lpm.Key128
	for i := 0; i < 8; i++ {
		k.Hi = k.Hi<<8 | uint64(b[i])
		k.Lo = k.Lo<<8 | uint64(b[i+8])
	}
	return k, nil
}

// parse splits "addr/len" or a bare address; a bare address reports
// length -1 so callers can substitute the full width.
func parse(s string) (netip.Addr, int, error) {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Addr{}, 0, fmt.Errorf("parsing address %q: %w", s, err)
		}
		return addr, -1, nil
	}
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("parsing CIDR %q: %w", s, err)
	}
	pfx = pfx.Masked()
	return pfx.Addr(), pfx.Bits(), nil
}

// ParsePrefix32 decodes "a.b.c.d/len" (or a bare address, meaning /32) into
// a 32 bit key and prefix length.
func ParsePrefix32(s string) (lpm.Key32, int, error) {
	addr, length, err := parse(s)
	if err != nil {
		return 0, 0, err
	}
	key, err := Key32FromAddr(addr)
	if err != nil {
		return 0, 0, err
	}
	if length == -1 {
		length = 32
	}
	return key, length, nil
}

// ParsePrefix128 decodes an IPv6 CIDR (or bare address, meaning /128) into
// a 128 bit key and prefix length.
func ParsePrefix128(s string) (lpm.Key128, int, error) {
	addr, length, err := parse(s)
	if err != nil {
		return lpm.Key128{}, 0, err
	}
	key, err := Key128FromAddr(addr)
	if err != nil {
		return lpm.Key128{}, 0, err
	}
	if length == -1 {
		length = 128
	}
	return key, length, nil
}

// ParseAddr32 decodes a full IPv4 address for querying. A partial mask is
// rejected: queries are exact-match on the whole width.
func ParseAddr32(s string) (lpm.Key32, error) {
	key, length, err := ParsePrefix32(s)
	if err != nil {
		return 0, err
	}
	if length != 32 {
		return 0, fmt.Errorf("%w: query %q carries a partial /%d mask", ErrAddressFamilyMismatch, s, length)
	}
	return key, nil
}

// ParseAddr128 decodes a full IPv6 address for querying.
func ParseAddr128(s string) (lpm.Key128, error) {
	key, length, err := ParsePrefix128(s)
	if err != nil {
		return lpm.Key128{}, err
	}
	if length != 128 {
		return lpm.Key128{}, fmt.Errorf("%w: query %q carries a partial /%d mask", ErrAddressFamilyMismatch, s, length)
	}
	return key, nil
}

// FormatKey32 renders a key back to dotted-quad form, mostly for logs.
func FormatKey32(key lpm.Key32) string {
	v := uint32(key)
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}).String()
}

// FormatKey128 renders a 128 bit key in IPv6 notation.
func FormatKey128(key lpm.Key128) string {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(key.Hi >> (56 - 8*i))
		b[i+8] = byte(key.Lo >> (56 - 8*i))
	}
	return netip.AddrFrom16(b).String()
}
