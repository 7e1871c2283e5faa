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

package coremain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IrineSistiana/ipguard/pkg/matcher/patternlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	s, err := patternlist.NewSet(patternlist.SetOpts{Tag: "banned"})
	require.NoError(t, err)
	_, err = s.Update(inlineSource, []byte("10.0.*.*\n203.0.113.0/24\n"))
	require.NoError(t, err)
	return NewTestGuardWithLists(map[string]*patternlist.Set{"banned": s})
}

func get(t *testing.T, g *Guard, url string, v any) int {
	t.Helper()
	w := httptest.NewRecorder()
	g.httpMux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	if v != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
	}
	return w.Code
}

func TestAPI_Match(t *testing.T) {
	g := newTestGuard(t)

	var r matchResp
	assert.Equal(t, http.StatusOK, get(t, g, "/api/match?pattern=10-20.*.*.*&ip=15.1.1.1", &r))
	assert.Equal(t, matchResp{Matched: true, Valid: true}, r)

	r = matchResp{}
	assert.Equal(t, http.StatusOK, get(t, g, "/api/match?pattern=1-2-3.*.*.*&ip=1.1.1.1", &r))
	assert.Equal(t, matchResp{Matched: false, Valid: false}, r)

	assert.Equal(t, http.StatusBadRequest, get(t, g, "/api/match?pattern=*.*.*.*&ip=nonsense", nil))
}

func TestAPI_Validate(t *testing.T) {
	g := newTestGuard(t)

	var r validateResp
	get(t, g, "/api/validate?pattern=%3A%3Affff%3A192.168.0.0-192.168.0.255", &r)
	assert.True(t, r.Valid)

	r = validateResp{}
	get(t, g, "/api/validate?pattern=%3A%3A%3F", &r)
	assert.False(t, r.Valid)
	assert.NotEmpty(t, r.Error)
}

func TestAPI_CIDR(t *testing.T) {
	g := newTestGuard(t)

	var r cidrResp
	get(t, g, "/api/cidr?network=10.0.0.0&ip=10.0.0.5&bits=24", &r)
	assert.True(t, r.Matched)

	r = cidrResp{}
	get(t, g, "/api/cidr?network=10.0.0.0&ip=2001:db8::1&bits=0", &r)
	assert.False(t, r.Matched)

	assert.Equal(t, http.StatusBadRequest, get(t, g, "/api/cidr?network=10.0.0.0&ip=10.0.0.5&bits=x", nil))
}

func TestAPI_ListMatch(t *testing.T) {
	g := newTestGuard(t)

	var r listMatchResp
	get(t, g, "/api/lists/banned/match?ip=203.0.113.9", &r)
	assert.Equal(t, listMatchResp{Matched: true, Entry: "203.0.113.0/24", Kind: "cidr", Source: inlineSource}, r)

	r = listMatchResp{}
	get(t, g, "/api/lists/banned/match?ip=8.8.8.8", &r)
	assert.False(t, r.Matched)

	assert.Equal(t, http.StatusNotFound, get(t, g, "/api/lists/unknown/match?ip=8.8.8.8", nil))
	assert.Equal(t, http.StatusNotFound, get(t, g, "/no/such/path", nil))
}

func TestAPI_Metrics(t *testing.T) {
	g := newTestGuard(t)
	assert.Equal(t, http.StatusOK, get(t, g, "/metrics", nil))
}
