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

package netlist

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"

	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
)

var (
	ErrNotSorted   = errors.New("list is not sorted")
	ErrInvalidAddr = errors.New("addr is invalid")
)

// List is a list of netip.Prefix. It stores all netip.Prefix in one single slice
// and use binary search.
// It is suitable for large static cidr search.
type List struct {
	// stores valid and masked 16-byte netip.Prefix(s)
	e      []netip.Prefix
	sorted bool
}

// NewList returns a *List.
func NewList() *List {
	return &List{
		e: make([]netip.Prefix, 0),
	}
}

func mustValid(l []netip.Prefix) {
	for i, prefix := range l {
		if !prefix.IsValid() {
			panic(fmt.Sprintf("invalid prefix at #%d", i))
		}
	}
}

// Append appends new netip.Prefix(s) to the list.
// IPv4 prefixes are moved into the IPv4-mapped space.
// This modified the list. Caller must call List.Sort() before calling List.Lookup()
func (list *List) Append(newNet ...netip.Prefix) {
	for i, n := range newNet {
		newNet[i] = normalize(n)
	}
	mustValid(newNet)
	list.e = append(list.e, newNet...)
	list.sorted = false
}

// Sort sorts the list, this must be called after
// list being modified and before calling List.Lookup().
// Duplicated and covered prefixes are merged.
func (list *List) Sort() {
	if list.sorted {
		return
	}

	sort.Sort(list)
	out := make([]netip.Prefix, 0)
	for i, n := range list.e {
		if i == 0 {
			out = append(out, n)
		} else {
			lv := &out[len(out)-1]
			switch {
			case n.Addr() == lv.Addr():
				if n.Bits() < lv.Bits() {
					*lv = n
				}
			case !lv.Contains(n.Addr()):
				out = append(out, n)
			}
		}
	}

	list.e = out
	list.sorted = true
}

// Len implements sort Interface.
func (list *List) Len() int {
	return len(list.e)
}

// Less implements sort Interface.
func (list *List) Less(i, j int) bool {
	return list.e[i].Addr().Less(list.e[j].Addr())
}

// Swap implements sort Interface.
func (list *List) Swap(i, j int) {
	list.e[i], list.e[j] = list.e[j], list.e[i]
}

// Lookup returns the prefix in the list that covers addr.
// IPv4 prefixes are returned in their 4-byte form.
func (list *List) Lookup(addr netip.Addr) (netip.Prefix, bool, error) {
	if !list.sorted {
		return netip.Prefix{}, false, ErrNotSorted
	}
	if !addr.IsValid() {
		return netip.Prefix{}, false, ErrInvalidAddr
	}

	addr = netip.AddrFrom16(ipmatch.To16(addr))

	i, j := 0, len(list.e)
	for i < j {
		h := int(uint(i+j) >> 1) // avoid overflow when computing h
		if list.e[h].Addr().Compare(addr) <= 0 {
			i = h + 1
		} else {
			j = h
		}
	}

	if i == 0 {
		return netip.Prefix{}, false, nil
	}

	p := list.e[i-1]
	if !ipmatch.MatchCIDR(p.Addr(), addr, p.Bits()) {
		return netip.Prefix{}, false, nil
	}
	return denormalize(p), true, nil
}

// Canonical returns p in the form List.Lookup reports it.
func Canonical(p netip.Prefix) netip.Prefix {
	return denormalize(normalize(p))
}

func normalize(p netip.Prefix) netip.Prefix {
	addr, bits := ipmatch.NormalizePrefix(p.Addr().WithZone(""), p.Bits())
	return netip.PrefixFrom(addr, bits).Masked()
}

func denormalize(p netip.Prefix) netip.Prefix {
	if p.Addr().Is4In6() && p.Bits() >= 96 {
		return netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
	}
	return p
}
