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

package cidr

import (
	"testing"

	"github.com/flatrie/flatrie/pkg/lpm"
	"github.com/stretchr/testify/require"
)

func TestParsePrefix32(t *testing.T) {
	key, length, err := ParsePrefix32("170.85.200.0/22")
	require.NoError(t, err)
	require.Equal(t, lpm.Key32(0xAA55C800), key)
	require.Equal(t, 22, length)

	// bare address means full mask
	key, length, err = ParsePrefix32("8.8.8.8")
	require.NoError(t, err)
	require.Equal(t, lpm.Key32(0x08080808), key)
	require.Equal(t, 32, length)

	// host bits below the mask are dropped
	key, length, err = ParsePrefix32("123.250.85.17/16")
	require.NoError(t, err)
	require.Equal(t, lpm.Key32(0x7BFA0000), key)
	require.Equal(t, 16, length)

	_, _, err = ParsePrefix32("not-an-ip/8")
	require.Error(t, err)
	_, _, err = ParsePrefix32("2001:db8::/32")
	require.ErrorIs(t, err, ErrAddressFamilyMismatch)
}

func TestParsePrefix128(t *testing.T) {
	key, length, err := ParsePrefix128("2001:db8::/32")
	require.NoError(t, err)
	require.Equal(t, lpm.Key128{Hi: 0x20010db800000000}, key)
	require.Equal(t, 32, length)

	key, length, err = ParsePrefix128("::1")
	require.NoError(t, err)
	require.Equal(t, lpm.Key128{Lo: 1}, key)
	require.Equal(t, 128, length)

	_, _, err = ParsePrefix128("10.0.0.0/8")
	require.ErrorIs(t, err, ErrAddressFamilyMismatch)
}

func TestParseAddr(t *testing.T) {
	key, err := ParseAddr32("123.250.85.17")
	require.NoError(t, err)
	require.Equal(t, lpm.Key32(0x7BFA5511), key)

	// queries must be exact-match on the full width
	_, err = ParseAddr32("123.250.85.17/24")
	require.ErrorIs(t, err, ErrAddressFamilyMismatch)
	_, err = ParseAddr128("2001:db8::/64")
	require.ErrorIs(t, err, ErrAddressFamilyMismatch)

	k6, err := ParseAddr128("2001:db8::1")
	require.NoError(t, err)
	require.Equal(t, lpm.Key128{Hi: 0x20010db800000000, Lo: 1}, k6)
}

func TestFormatRoundTrip(t *testing.T) {
	require.Equal(t, "170.85.200.0", FormatKey32(lpm.Key32(0xAA55C800)))
	require.Equal(t, "2001:db8::1", FormatKey128(lpm.Key128{Hi: 0x20010db800000000, Lo: 1}))
}

func TestKey32FromAddr_4In6(t *testing.T) {
	// mapped v4 addresses unmap to plain Key32
	key, err := ParseAddr32("::ffff:10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, lpm.Key32(0x0A000001), key)
}
