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

package patternlist

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
	"github.com/IrineSistiana/ipguard/pkg/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

var nopLogger = zap.NewNop()

type SetOpts struct {
	// Tag is the name of this set, required.
	Tag string

	// CacheSize is the number of cached lookup results.
	// Zero disables the cache.
	CacheSize int

	// Logger is the *zap.Logger for this Set.
	// A nil Logger will disable logging.
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *metrics.ListCollector
}

func (opts *SetOpts) Init() error {
	if len(opts.Tag) == 0 {
		return errors.New("empty tag")
	}
	if opts.CacheSize < 0 {
		return fmt.Errorf("invalid cache size %d", opts.CacheSize)
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Set is a named group of rule sources (inline patterns, files, redis).
// Sources can be updated at any time. Lookups always see a consistent
// snapshot of all sources.
type Set struct {
	opts SetOpts

	m       sync.Mutex // protects sources and order
	sources map[string][]byte
	order   []string

	s atomic.Pointer[snapshot]
}

type snapshot struct {
	l     *List
	cache *lru.Cache[netip.Addr, result] // may be nil
}

type result struct {
	e  Entry
	ok bool
}

func NewSet(opts SetOpts) (*Set, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	s := &Set{
		opts:    opts,
		sources: make(map[string][]byte),
	}
	sn, err := s.newSnapshot(NewList())
	if err != nil {
		return nil, err
	}
	s.s.Store(sn)
	return s, nil
}

func (s *Set) Tag() string {
	return s.opts.Tag
}

// Len returns the number of valid entries of all sources.
func (s *Set) Len() int {
	return s.s.Load().l.Len()
}

// Entries returns all valid entries of all sources.
func (s *Set) Entries() []Entry {
	return s.s.Load().l.Entries()
}

// Match reports whether addr matches any entry in the set.
func (s *Set) Match(addr netip.Addr) bool {
	_, ok := s.Lookup(addr)
	return ok
}

// Lookup returns an entry that matches addr. See List.Match.
func (s *Set) Lookup(addr netip.Addr) (Entry, bool) {
	if !addr.IsValid() {
		return Entry{}, false
	}
	addr = ipmatch.Normalize(addr)

	sn := s.s.Load()
	if sn.cache != nil {
		if r, ok := sn.cache.Get(addr); ok {
			s.count(metrics.ResultCacheHit)
			return r.e, r.ok
		}
	}

	e, ok := sn.l.Match(addr)
	if sn.cache != nil {
		sn.cache.Add(addr, result{e: e, ok: ok})
	}
	if ok {
		s.count(metrics.ResultMatched)
	} else {
		s.count(metrics.ResultMissed)
	}
	return e, ok
}

func (s *Set) count(result string) {
	if m := s.opts.Metrics; m != nil {
		m.Queries.WithLabelValues(result).Inc()
	}
}

// Update replaces the data of source and rebuilds the set. Invalid lines
// in b are logged and returned. They never fail the update.
// If the rebuild fails, the set keeps its previous sources and snapshot.
func (s *Set) Update(source string, b []byte) ([]Warning, error) {
	s.m.Lock()
	defer s.m.Unlock()

	order := s.order
	if _, ok := s.sources[source]; !ok {
		order = append(order[:len(order):len(order)], source)
	}
	data := func(name string) []byte {
		if name == source {
			return b
		}
		return s.sources[name]
	}

	l := NewList()
	var newWarnings []Warning
	totalWarnings := 0
	for _, name := range order {
		w, err := LoadFromReader(l, name, bytes.NewReader(data(name)))
		if err != nil {
			return nil, fmt.Errorf("failed to load source %s, %w", name, err)
		}
		totalWarnings += len(w)
		if name == source {
			newWarnings = w
		}
	}
	l.Sort()

	sn, err := s.newSnapshot(l)
	if err != nil {
		return nil, err
	}
	s.order = order
	s.sources[source] = b
	s.s.Store(sn)

	for _, w := range newWarnings {
		s.opts.Logger.Warn(
			"invalid list entry skipped",
			zap.String("list", s.opts.Tag),
			zap.String("source", w.Source),
			zap.Int("line", w.Line),
			zap.String("text", w.Text),
			zap.Error(w.Err),
		)
	}
	s.opts.Logger.Info(
		"list updated",
		zap.String("list", s.opts.Tag),
		zap.String("source", source),
		zap.Int("entries", l.Len()),
		zap.Int("warnings", totalWarnings),
	)
	if m := s.opts.Metrics; m != nil {
		m.Entries.Set(float64(l.Len()))
		m.Warnings.Set(float64(totalWarnings))
		m.Reloads.Inc()
	}
	return newWarnings, nil
}

func (s *Set) newSnapshot(l *List) (*snapshot, error) {
	sn := &snapshot{l: l}
	if s.opts.CacheSize > 0 {
		c, err := lru.New[netip.Addr, result](s.opts.CacheSize)
		if err != nil {
			return nil, err
		}
		sn.cache = c
	}
	return sn, nil
}

// SourceListener returns a listener that feeds source of s. It can be
// added to a data_provider.DataProvider or a redis_source.Source.
func (s *Set) SourceListener(source string) *SourceListener {
	return &SourceListener{s: s, source: source}
}

type SourceListener struct {
	s      *Set
	source string
}

func (l *SourceListener) Update(newData []byte) error {
	_, err := l.s.Update(l.source, newData)
	return err
}
