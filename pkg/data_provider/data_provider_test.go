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

package data_provider

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type chanListener chan []byte

func (c chanListener) Update(newData []byte) error {
	c <- newData
	return nil
}

func writeFile(t *testing.T, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(data), 0644))
}

func TestDataProvider_AutoReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "list.txt")
	writeFile(t, f, "10.*.*.*")

	dp, err := NewDataProvider(nil, DataProviderConfig{File: f, AutoReload: true})
	require.NoError(t, err)
	defer dp.Close()

	l := make(chanListener, 4)
	require.NoError(t, dp.LoadAndAddListener(l))
	assert.Equal(t, "10.*.*.*", string(<-l))

	writeFile(t, f, "192.168.*.*")
	select {
	case b := <-l:
		assert.Equal(t, "192.168.*.*", string(b))
	case <-time.After(reloadDelay * 5):
		t.Fatal("file was not reloaded")
	}
}

func TestDataProvider_MissingFile(t *testing.T) {
	_, err := NewDataProvider(nil, DataProviderConfig{File: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}

func TestDataManager_GetOrOpen(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "list.txt")
	writeFile(t, f, "::1")

	m := NewDataManager(nil)
	p1, err := m.GetOrOpen(DataProviderConfig{File: f})
	require.NoError(t, err)
	p2, err := m.GetOrOpen(DataProviderConfig{File: f, AutoReload: true})
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.True(t, p2.autoReload)

	b, err := p1.GetData()
	require.NoError(t, err)
	assert.Equal(t, "::1", string(b))

	m.Close()
}
