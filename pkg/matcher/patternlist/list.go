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

// Package patternlist loads rule lists of ip patterns and cidrs and
// matches addresses against them.
//
// The text format is one entry per line. "#" starts a comment and
// anything after the first space is ignored. A line containing "/" is a
// cidr ("10.0.0.0/8", "2001:db8::/32"), anything else is an ip pattern
// ("10.*.*.*", "::ffff:192.168.0.0-192.168.0.255"). Lines longer than
// MaxLineLength are skipped.
package patternlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
	"github.com/IrineSistiana/ipguard/pkg/matcher/netlist"
	"github.com/IrineSistiana/ipguard/pkg/utils"
)

// MaxLineLength is the maximum length of a line, comments included.
const MaxLineLength = 4096

var ErrLineTooLong = errors.New("line too long")

type Kind uint8

const (
	KindPattern Kind = iota
	KindCIDR
)

func (k Kind) String() string {
	switch k {
	case KindPattern:
		return "pattern"
	case KindCIDR:
		return "cidr"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Entry is a valid rule.
type Entry struct {
	Text   string
	Kind   Kind
	Source string
	Line   int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s (%s:%d)", e.Kind, e.Text, e.Source, e.Line)
}

// Warning is an invalid line that was skipped.
type Warning struct {
	Source string
	Line   int
	Text   string
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %q: %v", w.Source, w.Line, w.Text, w.Err)
}

// List is an immutable-after-Sort set of rules.
// Caller must call List.Sort() after loading and before calling List.Match().
type List struct {
	entries  []Entry // all valid entries in load order
	patterns []Entry
	cidrs    *netlist.List
	cidrE    map[netip.Prefix]Entry
}

func NewList() *List {
	return &List{
		cidrs: netlist.NewList(),
		cidrE: make(map[netip.Prefix]Entry),
	}
}

// Len returns the number of valid entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Sort must be called after the list being modified.
func (l *List) Sort() {
	l.cidrs.Sort()
}

// Entries returns all valid entries in load order.
func (l *List) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Match returns an entry that matches addr. Cidr entries are checked
// before patterns, so a cidr entry wins over any pattern regardless of
// load order. Among patterns, the first loaded one wins.
// Invalid addresses never match.
func (l *List) Match(addr netip.Addr) (Entry, bool) {
	if !addr.IsValid() {
		return Entry{}, false
	}
	if p, ok, _ := l.cidrs.Lookup(addr); ok {
		if e, ok := l.cidrE[p]; ok {
			return e, true
		}
	}
	for _, e := range l.patterns {
		if ipmatch.Match(e.Text, addr) {
			return e, true
		}
	}
	return Entry{}, false
}

// LoadFromReader loads rules from reader. Invalid lines, including
// lines longer than MaxLineLength, are skipped and returned as warnings.
// The returned error is only about reading.
// It might modify the List and causes List unsorted.
func LoadFromReader(l *List, source string, reader io.Reader) ([]Warning, error) {
	br := bufio.NewReader(reader)

	var warnings []Warning
	// count how many lines we have read.
	lineCounter := 0
	for {
		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			lineCounter++
			if w, ok := loadLine(l, source, lineCounter, line); !ok {
				warnings = append(warnings, w)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return warnings, nil
			}
			return warnings, readErr
		}
	}
}

func loadLine(l *List, source string, line int, s string) (Warning, bool) {
	if len(s) > MaxLineLength {
		return Warning{Source: source, Line: line, Text: s[:64] + "...", Err: ErrLineTooLong}, false
	}
	s = utils.RemoveComment(s, "#")
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	if len(s) == 0 {
		return Warning{}, true
	}
	if err := LoadFromText(l, source, line, s); err != nil {
		return Warning{Source: source, Line: line, Text: s, Err: err}, false
	}
	return Warning{}, true
}

// LoadFromText loads one rule.
// It might modify the List and causes List unsorted.
func LoadFromText(l *List, source string, line int, s string) error {
	e := Entry{Text: s, Source: source, Line: line}
	if strings.ContainsRune(s, '/') {
		p, err := netlist.LoadFromText(l.cidrs, s)
		if err != nil {
			return err
		}
		e.Kind = KindCIDR
		key := netlist.Canonical(p)
		if _, dup := l.cidrE[key]; !dup {
			l.cidrE[key] = e
		}
		l.entries = append(l.entries, e)
		return nil
	}

	if err := ipmatch.Check(s); err != nil {
		return err
	}
	e.Kind = KindPattern
	l.patterns = append(l.patterns, e)
	l.entries = append(l.entries, e)
	return nil
}
