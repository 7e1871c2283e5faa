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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCfg(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0644))
	return p
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	sub := writeCfg(t, dir, "sub.yaml", `
lists:
  - tag: proxies
    patterns: ["127.0.0.1"]
`)
	main := writeCfg(t, dir, "config.yaml", `
log:
  level: debug
include: [`+sub+`]
lists:
  - tag: banned
    patterns:
      - "10.0.*.*"
      - "203.0.113.0/24"
    files:
      - path: banned.txt
        auto_reload: true
    cache_size: "4096"
gate:
  listen: 127.0.0.1:2593
  backend: 127.0.0.1:2594
  deny: [banned]
  trusted_proxies: [proxies]
  idle_timeout: 300
api:
  http: 127.0.0.1:9080
`)

	cfg, used, err := loadConfig(main)
	require.NoError(t, err)
	assert.Equal(t, main, used)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Lists, 2)
	assert.Equal(t, "banned", cfg.Lists[0].Tag)
	assert.Equal(t, 4096, cfg.Lists[0].CacheSize)
	assert.Equal(t, "banned.txt", cfg.Lists[0].Files[0].File)
	assert.True(t, cfg.Lists[0].Files[0].AutoReload)
	assert.Equal(t, "proxies", cfg.Lists[1].Tag)
	assert.Equal(t, []string{"banned"}, cfg.Gate.Deny)
	assert.Equal(t, uint(300), cfg.Gate.IdleTimeout)
	assert.Equal(t, "127.0.0.1:9080", cfg.API.HTTP)
}

func TestLoadConfig_UnknownKey(t *testing.T) {
	p := writeCfg(t, t.TempDir(), "config.yaml", "lists:\n  - tag: a\n    pattern: [\"1.2.3.4\"]\n")
	_, _, err := loadConfig(p)
	assert.Error(t, err)
}

func TestLoadConfig_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	writeCfg(t, dir, "a.yaml", "include: ["+b+"]\n")
	writeCfg(t, dir, "b.yaml", "include: ["+a+"]\n")
	_, _, err := loadConfig(a)
	assert.ErrorContains(t, err, "cycle")
}
