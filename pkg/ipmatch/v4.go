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
	"strings"
)

const (
	v4Sections = 4
	v4Max      = 0xff
)

// MatchV4 matches an IPv4 pattern against a 4-byte address.
//
// The pattern has exactly four dot separated sections. A section is a
// decimal number, a hex number prefixed by "x" or "0x", a range "lo-hi"
// or a single "*". A whole address range "a.b.c.d-e.f.g.h" is accepted
// as well. valid is false if the pattern is malformed, in that case
// matched is always false.
func MatchV4(pattern string, ip [4]byte) (matched, valid bool) {
	m, err := matchV4(pattern, 0, ip[:])
	if err != nil {
		return false, false
	}
	return m, true
}

// matchV4 scans p left to right, one address octet per section.
// ip must have 4 bytes. off is the offset of p in the outer pattern.
func matchV4(p string, off int, ip []byte) (bool, *SyntaxError) {
	if lo, hi, ok := splitV4AddrRange(p); ok {
		return matchV4AddrRange(lo, off, hi, off+len(lo)+1, ip)
	}

	match := true
	section := 0
	start := 0
	for i := 0; i <= len(p); i++ {
		if i < len(p) && p[i] != '.' {
			continue
		}
		if section == v4Sections {
			return false, syntaxErr(off+start, "too many sections")
		}
		ok, err := matchSection(p[start:i], off+start, uint32(ip[section]), v4Max, 10)
		if err != nil {
			return false, err
		}
		match = match && ok
		section++
		start = i + 1
	}
	if section != v4Sections {
		return false, syntaxErr(off+len(p), "too few sections")
	}
	return match, nil
}

// splitV4AddrRange splits "a.b.c.d-e.f.g.h" into its two addresses.
func splitV4AddrRange(p string) (lo, hi string, ok bool) {
	if strings.Count(p, ".") != 2*(v4Sections-1) {
		return "", "", false
	}
	dash := strings.IndexByte(p, '-')
	if dash < 0 {
		return "", "", false
	}
	lo, hi = p[:dash], p[dash+1:]
	if strings.Count(lo, ".") != v4Sections-1 {
		return "", "", false
	}
	return lo, hi, true
}

func matchV4AddrRange(lo string, loOff int, hi string, hiOff int, ip []byte) (bool, *SyntaxError) {
	l, err := parseV4Addr(lo, loOff)
	if err != nil {
		return false, err
	}
	h, err := parseV4Addr(hi, hiOff)
	if err != nil {
		return false, err
	}
	v := binary.BigEndian.Uint32(ip)
	return v >= l && v <= h, nil
}

// parseV4Addr parses a dotted address whose sections are plain numbers.
func parseV4Addr(s string, off int) (uint32, *SyntaxError) {
	var b [4]byte
	section := 0
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '.' {
			continue
		}
		if section == v4Sections {
			return 0, syntaxErr(off+start, "too many sections")
		}
		if start == i {
			return 0, syntaxErr(off+start, "empty section")
		}
		n, _, err := parseBound(s[start:i], off+start, 10, v4Max)
		if err != nil {
			return 0, err
		}
		b[section] = byte(n)
		section++
		start = i + 1
	}
	if section != v4Sections {
		return 0, syntaxErr(off+len(s), "too few sections")
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
