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

import "net/netip"

// Normalize returns the canonical form of addr used for matching.
// IPv4-mapped IPv6 addresses are folded into 4-byte IPv4 and zones are
// dropped. Everything else is returned unchanged.
func Normalize(addr netip.Addr) netip.Addr {
	return addr.Unmap().WithZone("")
}

// To16 returns the 16-byte form of addr. IPv4 addresses are expanded to
// ::ffff:a.b.c.d.
func To16(addr netip.Addr) [16]byte {
	return addr.As16()
}

// NormalizePrefix moves a network into the 16-byte space used by MatchCIDR.
// A 4-byte network gets its prefix length offset by 96 so that it keeps
// covering the same IPv4 addresses after expansion. The returned length is
// clamped to [0, 128].
func NormalizePrefix(network netip.Addr, bits int) (netip.Addr, int) {
	if network.Is4() {
		bits += 96
	}
	return netip.AddrFrom16(To16(network)), clampBits(bits)
}

func clampBits(bits int) int {
	switch {
	case bits < 0:
		return 0
	case bits > 128:
		return 128
	default:
		return bits
	}
}
