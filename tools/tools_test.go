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

package tools

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMatch(t *testing.T) {
	b := new(bytes.Buffer)
	require.NoError(t, runMatch(b, "10-20.*.*.*", "15.0.0.1"))
	assert.Equal(t, "true\n", b.String())

	b.Reset()
	require.NoError(t, runMatch(b, "::ffff:192.168.0.0-192.168.0.255", "192.168.1.1"))
	assert.Equal(t, "false\n", b.String())

	assert.Error(t, runMatch(b, "1-2-3.*.*.*", "1.1.1.1"))
	assert.Error(t, runMatch(b, "*.*.*.*", "nonsense"))
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(good, []byte("10.*.*.*\n# comment\n2001:db8::/32\n"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("10.*.*.*\n**.*.*.*\n"), 0644))

	b := new(bytes.Buffer)
	require.NoError(t, runValidate(b, []string{good}))
	assert.Empty(t, b.String())

	err := runValidate(b, []string{good, bad, filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
	assert.Contains(t, b.String(), "bad.txt:2")
}

func TestGenCfg(t *testing.T) {
	out := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, genCfg(out))

	v := viper.New()
	v.SetConfigFile(out)
	require.NoError(t, v.ReadInConfig())
	cfg := new(templateConfig)
	require.NoError(t, v.Unmarshal(cfg, func(c *mapstructure.DecoderConfig) { c.TagName = "yaml" }))
	assert.Equal(t, "banned", cfg.Lists[0].Tag)
	assert.Equal(t, []string{"banned"}, cfg.Gate.Deny)
}
