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
	v6Sections = 8
	v6Max      = 0xffff
)

// MatchV6 matches an IPv6 pattern against a 16-byte address.
//
// Sections are hex hextets with the same range and wildcard syntax as
// MatchV4. "::" may appear once and stands for one or more zero
// hextets. The last section may be a dotted IPv4 pattern that is matched
// against the last 4 bytes of ip, e.g. "::ffff:10.0.*.*". The preceding
// hextets are matched as written, so the dotted tail also works after
// prefixes other than ffff ("::10.*.*.*", "64:ff9b::10.*.*.*").
// '?' is not supported and makes the pattern invalid.
func MatchV6(pattern string, ip [16]byte) (matched, valid bool) {
	m, err := matchV6(pattern, &ip)
	if err != nil {
		return false, false
	}
	return m, true
}

type v6Section struct {
	s   string
	off int
}

func matchV6(p string, ip *[16]byte) (bool, *SyntaxError) {
	if len(p) == 0 {
		return false, syntaxErr(0, "empty pattern")
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return false, syntaxErr(i, "'?' is not supported")
	}

	head, tail := p, ""
	tailOff := 0
	compressed := false
	if i := strings.Index(p, "::"); i >= 0 {
		compressed = true
		head, tail, tailOff = p[:i], p[i+2:], i+2
		if strings.HasPrefix(tail, ":") {
			return false, syntaxErr(i+2, "unexpected ':' after '::'")
		}
		if j := strings.Index(tail, "::"); j >= 0 {
			return false, syntaxErr(tailOff+j, "'::' may only appear once")
		}
	}

	var buf [v6Sections + 1]v6Section
	sections, err := splitV6(head, 0, buf[:0])
	if err != nil {
		return false, err
	}
	nHead := len(sections)
	sections, err = splitV6(tail, tailOff, sections)
	if err != nil {
		return false, err
	}

	// An embedded IPv4 pattern takes the place of the last two hextets.
	hextets := len(sections)
	hasV4 := false
	if n := len(sections); n > 0 && (!compressed || n > nHead) && strings.IndexByte(sections[n-1].s, '.') >= 0 {
		hasV4 = true
		hextets++
	}

	zeros := 0
	switch {
	case hextets > v6Sections:
		return false, syntaxErr(len(p), "too many sections")
	case compressed:
		if hextets == v6Sections {
			return false, syntaxErr(tailOff-2, "'::' must stand for at least one section")
		}
		zeros = v6Sections - hextets
	case hextets < v6Sections:
		return false, syntaxErr(len(p), "too few sections")
	}

	match := true
	h := 0
	for i, sec := range sections {
		if i == nHead {
			for ; zeros > 0; zeros-- {
				match = match && hextet(ip, h) == 0
				h++
			}
		}
		if hasV4 && i == len(sections)-1 {
			ok, err := matchV4(sec.s, sec.off, ip[12:])
			if err != nil {
				return false, err
			}
			match = match && ok
			h += 2
			continue
		}
		ok, err := matchSection(sec.s, sec.off, uint32(hextet(ip, h)), v6Max, 16)
		if err != nil {
			return false, err
		}
		match = match && ok
		h++
	}
	// "::" at the very end.
	for ; zeros > 0; zeros-- {
		match = match && hextet(ip, h) == 0
		h++
	}
	return match, nil
}

// splitV6 appends the colon separated sections of s to dst. An empty s
// yields no section, an empty section inside s is an error.
func splitV6(s string, off int, dst []v6Section) ([]v6Section, *SyntaxError) {
	if len(s) == 0 {
		return dst, nil
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != ':' {
			continue
		}
		if start == i {
			if off+start == 0 {
				return nil, syntaxErr(0, "pattern cannot begin with a single ':'")
			}
			return nil, syntaxErr(off+start, "empty section")
		}
		if len(dst) == v6Sections {
			return nil, syntaxErr(off+start, "too many sections")
		}
		dst = append(dst, v6Section{s: s[start:i], off: off + start})
		start = i + 1
	}
	return dst, nil
}

func hextet(ip *[16]byte, i int) uint16 {
	return binary.BigEndian.Uint16(ip[i*2:])
}
