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

// Package ipintern keeps one canonical copy of every client address seen
// by the gate, so that per-connection state can be keyed by a value that
// compares equal regardless of how the address arrived (mapped, zoned).
package ipintern

import (
	"encoding/binary"
	"net/netip"

	"github.com/IrineSistiana/ipguard/pkg/concurrent_map"
	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
)

type key netip.Addr

func (k key) Sum() uint64 {
	b := netip.Addr(k).As16()
	return binary.BigEndian.Uint64(b[:8]) ^ binary.BigEndian.Uint64(b[8:])
}

// Interner is a concurrent address table. The zero value is not usable,
// use New.
type Interner struct {
	m *concurrent_map.Map[key, netip.Addr]
}

// New returns an Interner that holds at most size addresses.
// If size <= 0, it is unbounded.
func New(size int) *Interner {
	return &Interner{m: concurrent_map.NewMapCache[key, netip.Addr](size)}
}

// Intern returns the canonical copy of addr. addr is normalized first,
// so ::ffff:1.2.3.4 and 1.2.3.4 intern to the same value.
// Invalid addresses are returned as is and never stored.
func (i *Interner) Intern(addr netip.Addr) netip.Addr {
	if !addr.IsValid() {
		return addr
	}
	addr = ipmatch.Normalize(addr)
	v, _ := i.m.GetOrSet(key(addr), addr)
	return v
}

// Len returns the number of interned addresses.
func (i *Interner) Len() int {
	return i.m.Len()
}
