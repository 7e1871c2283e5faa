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
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/IrineSistiana/ipguard/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_Update(t *testing.T) {
	m := metrics.NewListCollector(nil)
	s, err := NewSet(SetOpts{Tag: "banned", CacheSize: 16, Metrics: m})
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.1")
	assert.False(t, s.Match(addr))

	w, err := s.Update("inline", []byte("10.0.*.*\n"))
	require.NoError(t, err)
	assert.Empty(t, w)
	assert.True(t, s.Match(addr), "cache must be dropped on update")

	w, err = s.Update("file", []byte("192.168.0.0/16\nbad-line\n"))
	require.NoError(t, err)
	require.Len(t, w, 1)
	assert.Equal(t, "file", w[0].Source)
	assert.Equal(t, 2, s.Len())

	e, ok := s.Lookup(netip.MustParseAddr("::ffff:192.168.3.3"))
	require.True(t, ok)
	assert.Equal(t, KindCIDR, e.Kind)
	assert.Equal(t, "file", e.Source)

	// replace a source
	_, err = s.Update("inline", []byte(""))
	require.NoError(t, err)
	assert.False(t, s.Match(addr))
	assert.Equal(t, 1, s.Len())

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Entries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Warnings))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Reloads))
}

func TestSet_UpdateWithOverlongLine(t *testing.T) {
	s, err := NewSet(SetOpts{Tag: "banned"})
	require.NoError(t, err)

	_, err = s.Update("a", []byte("10.*.*.*"))
	require.NoError(t, err)

	w, err := s.Update("b", []byte(strings.Repeat("1", 70000)+"\n12.*.*.*\n"))
	require.NoError(t, err)
	require.Len(t, w, 1)
	assert.ErrorIs(t, w[0].Err, ErrLineTooLong)
	assert.Equal(t, 1, w[0].Line)
	assert.True(t, s.Match(netip.MustParseAddr("12.0.0.1")))

	// other sources must keep updating
	_, err = s.Update("a", []byte("10.*.*.*\n11.*.*.*"))
	require.NoError(t, err)
	assert.True(t, s.Match(netip.MustParseAddr("11.0.0.1")))
	assert.True(t, s.Match(netip.MustParseAddr("12.0.0.1")))
	assert.Equal(t, 3, s.Len())
}

func TestSet_Cache(t *testing.T) {
	m := metrics.NewListCollector(nil)
	s, err := NewSet(SetOpts{Tag: "t", CacheSize: 16, Metrics: m})
	require.NoError(t, err)
	_, err = s.Update("inline", []byte("10.*.*.*"))
	require.NoError(t, err)

	assert.True(t, s.Match(netip.MustParseAddr("10.1.1.1")))
	assert.True(t, s.Match(netip.MustParseAddr("::ffff:10.1.1.1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Queries.WithLabelValues(metrics.ResultMatched)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Queries.WithLabelValues(metrics.ResultCacheHit)))
}

func TestSet_SourceListener(t *testing.T) {
	s, err := NewSet(SetOpts{Tag: "t"})
	require.NoError(t, err)
	require.NoError(t, s.SourceListener("file").Update([]byte("::1")))
	assert.True(t, s.Match(netip.MustParseAddr("::1")))
}

func TestSet_ConcurrentLookup(t *testing.T) {
	s, err := NewSet(SetOpts{Tag: "t", CacheSize: 64})
	require.NoError(t, err)
	_, err = s.Update("inline", []byte("10.*.*.*"))
	require.NoError(t, err)

	wg := new(sync.WaitGroup)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 256; j++ {
				if !s.Match(netip.AddrFrom4([4]byte{10, byte(i), byte(j), 1})) {
					t.Error("unexpected miss")
					return
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		_, err := s.Update("other", []byte("192.168.*.*"))
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestNewSet_InvalidOpts(t *testing.T) {
	_, err := NewSet(SetOpts{})
	assert.Error(t, err)
	_, err = NewSet(SetOpts{Tag: "t", CacheSize: -1})
	assert.Error(t, err)
}
