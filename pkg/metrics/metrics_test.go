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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewListCollector(prometheus.WrapRegistererWithPrefix("list_banned_", reg))
	c.Entries.Set(3)
	c.Queries.WithLabelValues(ResultMatched).Inc()
	c.Queries.WithLabelValues(ResultMissed).Add(2)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.Entries))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.Queries.WithLabelValues(ResultMissed)))

	n, err := testutil.GatherAndCount(reg, "list_banned_entries", "list_banned_query_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGateCollector_NilRegisterer(t *testing.T) {
	c := NewGateCollector(nil)
	c.Rejected.WithLabelValues(ReasonDenied).Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Rejected.WithLabelValues(ReasonDenied)))
}

func TestNewGaugeFunc(t *testing.T) {
	reg := prometheus.NewRegistry()
	v := 1.0
	g := NewGaugeFunc(reg, "interned_addresses", "test", func() float64 { return v })
	v = 42
	assert.Equal(t, float64(42), testutil.ToFloat64(g))
}
