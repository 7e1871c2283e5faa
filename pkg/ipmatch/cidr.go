/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of ipguard.
 *
 * ipguard is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * ipguard is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package ipmatch

import (
	"encoding/binary"
	"net/netip"
)

// MatchCIDR reports whether candidate is inside the network network/bits.
//
// Both addresses are compared in 16-byte form. If network is a 4-byte
// IPv4 address, bits is an IPv4 prefix length and is offset by 96. A
// genuine IPv6 candidate never matches an IPv4 network, an IPv4-mapped
// one does. bits is clamped to [0, 128].
func MatchCIDR(network, candidate netip.Addr, bits int) bool {
	if !network.IsValid() || !candidate.IsValid() {
		return false
	}
	if network.Is4() && candidate.Is6() && !candidate.Is4In6() {
		return false
	}

	n, bits := NormalizePrefix(network, bits)
	nb := n.As16()
	cb := To16(candidate)

	words, rem := bits/32, bits%32
	for i := 0; i < words; i++ {
		if word(&nb, i) != word(&cb, i) {
			return false
		}
	}
	if rem == 0 {
		return true
	}

	mask := uint32(1)<<(32-rem) - 1
	nw, cw := word(&nb, words), word(&cb, words)
	return cw >= nw&^mask && cw <= nw|mask
}

// MatchClassC reports whether a and b share the same /24 network.
// If either of them can not be represented as an IPv4 address, or is
// 0.0.0.0, it falls back to a plain equality test.
func MatchClassC(a, b netip.Addr) bool {
	x, y := v4Uint32(a), v4Uint32(b)
	if x == 0 || y == 0 {
		return Normalize(a) == Normalize(b)
	}
	return x&0xffffff00 == y&0xffffff00
}

func v4Uint32(addr netip.Addr) uint32 {
	addr = Normalize(addr)
	if !addr.Is4() {
		return 0
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func word(b *[16]byte, i int) uint32 {
	return binary.BigEndian.Uint32(b[i*4:])
}
