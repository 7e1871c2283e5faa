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

// Package ipmatch matches IP addresses against the compact pattern
// grammar used in ban lists and access lists.
//
//	10.0.*.*            any address in 10.0.0.0/16
//	10-20.*.*.*         first octet between 10 and 20
//	0x0A.*.*.*          hex section
//	10.0.0.0-10.0.3.255 address range
//	2001:db8::*         IPv6 with zero compression
//	::ffff:192.168.*.*  IPv4-mapped tail
//
// All functions are pure and safe for concurrent use. A malformed pattern
// never matches.
package ipmatch

import (
	"net/netip"
	"strings"
)

// Match reports whether addr matches pattern. Malformed patterns never
// match, see MatchValid.
func Match(pattern string, addr netip.Addr) bool {
	m, _ := MatchValid(pattern, addr)
	return m
}

// MatchValid is like Match but also reports whether pattern is
// syntactically valid. If valid is false, matched is false.
//
// addr is normalized first. The IPv6 grammar is used if the normalized
// address is IPv6 or if pattern contains a ':', the IPv4 grammar
// otherwise. An invalid (zero) addr never matches.
func MatchValid(pattern string, addr netip.Addr) (matched, valid bool) {
	if !addr.IsValid() {
		return false, IsValidPattern(pattern)
	}
	addr = Normalize(addr)
	if addr.Is6() || strings.IndexByte(pattern, ':') >= 0 {
		return MatchV6(pattern, To16(addr))
	}
	return MatchV4(pattern, addr.As4())
}

// IsValidPattern reports whether pattern is syntactically valid.
// Validity only depends on the pattern text, so it is tested against the
// unspecified address.
func IsValidPattern(pattern string) bool {
	_, valid := MatchValid(pattern, netip.IPv4Unspecified())
	return valid
}

// Check returns a *SyntaxError describing why pattern is invalid, or nil.
func Check(pattern string) error {
	var err *SyntaxError
	if strings.IndexByte(pattern, ':') >= 0 {
		var ip [16]byte
		_, err = matchV6(pattern, &ip)
	} else {
		var ip [4]byte
		_, err = matchV4(pattern, 0, ip[:])
	}
	if err != nil {
		err.Pattern = pattern
		return err
	}
	return nil
}
