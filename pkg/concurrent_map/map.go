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

package concurrent_map

import (
	"sync"
)

const (
	MapShardSize = 64
)

type Hashable interface {
	comparable
	Sum() uint64
}

// Map is a sharded map. Each shard has its own lock, so goroutines
// working on different keys rarely contend.
type Map[K Hashable, V any] struct {
	shards [MapShardSize]shard[K, V]
}

// NewMapCache returns a map with a maximum size.
// Note that, because it has multiple (MapShardSize) shards,
// the actual maximum size is MapShardSize*(size / MapShardSize).
// If size <= 0, the map is unbounded.
func NewMapCache[K Hashable, V any](size int) *Map[K, V] {
	sizePerShard := size / MapShardSize
	m := new(Map[K, V])
	for i := range m.shards {
		m.shards[i] = newShard[K, V](sizePerShard)
	}
	return m
}

func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	return &m.shards[key.Sum()%MapShardSize]
}

// GetOrSet returns the value stored for key. If there is none, it stores
// v and returns it. loaded reports whether the value was already there.
func (m *Map[K, V]) GetOrSet(key K, v V) (actual V, loaded bool) {
	return m.getShard(key).getOrSet(key, v)
}

func (m *Map[K, V]) Len() int {
	l := 0
	for i := range m.shards {
		l += m.shards[i].len()
	}
	return l
}

type shard[K comparable, V any] struct {
	l   sync.RWMutex
	max int // Negative or zero max means no limit.
	m   map[K]V
}

func newShard[K comparable, V any](max int) shard[K, V] {
	return shard[K, V]{
		max: max,
		m:   make(map[K]V),
	}
}

func (m *shard[K, V]) get(key K) (V, bool) {
	m.l.RLock()
	defer m.l.RUnlock()
	v, ok := m.m[key]
	return v, ok
}

func (m *shard[K, V]) getOrSet(key K, v V) (V, bool) {
	if old, ok := m.get(key); ok {
		return old, true
	}

	m.l.Lock()
	defer m.l.Unlock()
	if old, ok := m.m[key]; ok { // set by someone else in the meantime
		return old, true
	}
	m.evictLocked()
	m.m[key] = v
	return v, false
}

// evictLocked drops random entries until there is room for one more.
func (m *shard[K, V]) evictLocked() {
	if m.max > 0 && len(m.m)+1 > m.max {
		for k := range m.m {
			delete(m.m, k)
			if len(m.m)+1 <= m.max {
				break
			}
		}
	}
}

func (m *shard[K, V]) len() int {
	m.l.RLock()
	defer m.l.RUnlock()
	return len(m.m)
}
