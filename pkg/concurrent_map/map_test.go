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
	"testing"

	"github.com/stretchr/testify/assert"
)

type testMapHashable uint64

func (h testMapHashable) Sum() uint64 {
	return uint64(h)
}

func Test_Map(t *testing.T) {
	m := NewMapCache[testMapHashable, int](0)
	wg := sync.WaitGroup{}

	// test add
	for i := 0; i < 512; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, loaded := m.GetOrSet(testMapHashable(i), i); loaded {
				t.Errorf("key %d was already stored", i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 512, m.Len())

	// test get
	for i := 0; i < 512; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, loaded := m.GetOrSet(testMapHashable(i), -1)
			if !loaded || v != i {
				t.Errorf("GetOrSet(%d) = %d, %v", i, v, loaded)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 512, m.Len())
}

func TestMap_GetOrSet(t *testing.T) {
	m := NewMapCache[testMapHashable, int](0)
	wg := sync.WaitGroup{}

	var mu sync.Mutex
	stored := 0
	for i := 1; i <= 256; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, loaded := m.GetOrSet(7, i); !loaded {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, stored, "exactly one goroutine should store the value")
	v, loaded := m.GetOrSet(7, -1)
	assert.True(t, loaded)
	assert.NotEqual(t, -1, v)
	assert.Equal(t, 1, m.Len())
}

func TestMapCache_MaxSize(t *testing.T) {
	m := NewMapCache[testMapHashable, int](MapShardSize * 2)
	for i := 0; i < MapShardSize*16; i++ {
		m.GetOrSet(testMapHashable(i), i)
	}
	assert.LessOrEqual(t, m.Len(), MapShardSize*2)
}

func BenchmarkMap_GetOrSet(b *testing.B) {
	keys := make([]testMapHashable, 2048)
	m := NewMapCache[testMapHashable, int](0)
	for i := 0; i < 2048; i++ {
		key := testMapHashable(i)
		keys[i] = key
		m.GetOrSet(key, i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			i++
			m.GetOrSet(keys[i%2048], i)
		}
	})
}
