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

// matchSection evaluates one dot or colon delimited pattern section against
// the address value v. max is the upper end of the section's domain
// (255 for octets, 65535 for hextets) and base the default numeric base.
// off is the offset of s in the whole pattern, used for error reporting.
func matchSection(s string, off int, v, max uint32, base int) (bool, *SyntaxError) {
	if len(s) == 0 {
		return false, syntaxErr(off, "empty section")
	}

	// A wildcard only folds the upper bound. The domain starts at 0 so
	// this is always true for a well-formed address.
	if s == "*" {
		return v <= max, nil
	}

	dash := -1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*':
			return false, syntaxErr(off+i, "wildcard must be the only character of a section")
		case '-':
			if dash >= 0 {
				return false, syntaxErr(off+i, "only one range is allowed in a section")
			}
			if i == 0 || i == len(s)-1 {
				return false, syntaxErr(off+i, "range is missing a bound")
			}
			dash = i
		}
	}

	if dash < 0 {
		n, _, err := parseBound(s, off, base, max)
		if err != nil {
			return false, err
		}
		return v == n, nil
	}

	lo, base, err := parseBound(s[:dash], off, base, max)
	if err != nil {
		return false, err
	}
	hi, _, err := parseBound(s[dash+1:], off+dash+1, base, max)
	if err != nil {
		return false, err
	}
	return v >= lo && v <= hi, nil
}

// parseBound parses a single number of a section. A leading "x" or "0x"
// switches the section to base 16. The base in effect is returned so the
// upper bound of a range inherits it.
// Digits must be valid in the base in effect. A hex letter in a decimal
// section ("a.1.1.1") is a syntax error, it is not accumulated as a
// decimal digit worth 10..15.
func parseBound(s string, off int, base int, max uint32) (uint32, int, *SyntaxError) {
	i := 0
	switch {
	case len(s) > 0 && (s[0] == 'x' || s[0] == 'X'):
		base, i = 16, 1
	case len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X'):
		base, i = 16, 2
	}
	if i == len(s) {
		return 0, base, syntaxErr(off+i, "missing digits")
	}

	var n uint32
	for ; i < len(s); i++ {
		c := s[i]
		d := hexVal(c)
		if d < 0 || d >= base {
			return 0, base, syntaxErr(off+i, invalidCharReason(c))
		}
		n = n*uint32(base) + uint32(d)
		if n > max {
			return 0, base, syntaxErr(off, "value out of range")
		}
	}
	return n, base, nil
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func invalidCharReason(c byte) string {
	switch c {
	case '?':
		return "'?' is not supported"
	case 'x', 'X':
		return "'x' must start a section"
	}
	return "unexpected character " + quoteByte(c)
}

func quoteByte(c byte) string {
	if c < 0x20 || c >= 0x7f {
		const hex = "0123456789abcdef"
		return `'\x` + string([]byte{hex[c>>4], hex[c&0xf]}) + `'`
	}
	return "'" + string(c) + "'"
}
