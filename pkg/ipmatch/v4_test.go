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
	"testing"
)

func v4(s string) [4]byte {
	return mustAddr(s).As4()
}

func TestMatchV4(t *testing.T) {
	tests := []struct {
		pattern string
		ip      string
		want    bool
	}{
		{"*.*.*.*", "0.0.0.0", true},
		{"*.*.*.*", "255.255.255.255", true},
		{"192.168.1.1", "192.168.1.1", true},
		{"192.168.1.1", "192.168.1.2", false},
		{"192.168.1.1", "1.1.168.192", false},
		{"10-20.*.*.*", "9.255.255.255", false},
		{"10-20.*.*.*", "10.0.0.0", true},
		{"10-20.*.*.*", "15.1.2.3", true},
		{"10-20.*.*.*", "20.255.255.255", true},
		{"10-20.*.*.*", "21.0.0.0", false},
		{"10.0.*.1-5", "10.0.77.3", true},
		{"10.0.*.1-5", "10.0.77.6", false},
		{"0x0A.*.*.*", "10.1.2.3", true},
		{"0x0A.*.*.*", "11.1.2.3", false},
		{"x0a.*.*.*", "10.1.2.3", true},
		{"XFF.*.*.*", "255.0.0.1", true},
		{"xA-xF.*.*.*", "15.0.0.0", true},
		{"xA-F.*.*.*", "16.0.0.0", false},
		{"10.0.0.0-10.0.3.255", "10.0.2.9", true},
		{"10.0.0.0-10.0.3.255", "10.0.0.0", true},
		{"10.0.0.0-10.0.3.255", "10.0.3.255", true},
		{"10.0.0.0-10.0.3.255", "10.0.4.0", false},
		{"10.0.0.0-10.0.3.255", "9.255.255.255", false},
		{"0.0.0.0", "0.0.0.0", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.ip, func(t *testing.T) {
			got, valid := MatchV4(tt.pattern, v4(tt.ip))
			if !valid {
				t.Fatalf("MatchV4(%q) reported invalid pattern", tt.pattern)
			}
			if got != tt.want {
				t.Errorf("MatchV4(%q, %s) = %v, want %v", tt.pattern, tt.ip, got, tt.want)
			}
		})
	}
}

func TestMatchV4_Invalid(t *testing.T) {
	patterns := []string{
		"",
		"1-2-3.*.*.*",
		"**.*.*.*",
		"*1.*.*.*",
		"1*.*.*.*",
		"1.2.3",
		"1.2.3.4.5",
		"1.2.3.4.",
		".1.2.3",
		"1..2.3",
		"256.1.1.1",
		"1.2.3.1000000000000",
		"-1.2.3.4",
		"1-.2.3.4",
		"1.2.3.4-",
		"1x.2.3.4",
		"x.2.3.4",
		"0x.2.3.4",
		"a.1.1.1",
		"1.2.3.?",
		"1.2.3.4 ",
		"xFFF.1.1.1",
		"10.0.0.0-10.0.3.256",
		"10.0.0.*-10.0.3.255",
	}
	ip := v4("1.2.3.4")
	for _, p := range patterns {
		t.Run(p, func(t *testing.T) {
			matched, valid := MatchV4(p, ip)
			if valid || matched {
				t.Errorf("MatchV4(%q) = (%v, %v), want (false, false)", p, matched, valid)
			}
		})
	}
}

func TestMatchV4_FirstOctetRange(t *testing.T) {
	for o := 0; o <= 255; o++ {
		ip := [4]byte{byte(o), 1, 2, 3}
		got, valid := MatchV4("10-20.*.*.*", ip)
		want := o >= 10 && o <= 20
		if !valid || got != want {
			t.Fatalf("octet %d: got (%v, %v), want (%v, true)", o, got, valid, want)
		}
	}
}
