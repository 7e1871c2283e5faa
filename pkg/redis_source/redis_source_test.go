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

package redis_source

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanListener chan []byte

func (c chanListener) Update(newData []byte) error {
	c <- newData
	return nil
}

func newTestSource(t *testing.T, interval time.Duration) (*Source, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := New(Opts{
		Client:          c,
		ClientCloser:    c,
		Key:             "ipguard:banned",
		RefreshInterval: interval,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestSource_Fetch(t *testing.T) {
	s, mr := newTestSource(t, time.Hour)
	_, err := mr.SAdd("ipguard:banned", "10.*.*.*", "::1", "192.168.0.0/16")
	require.NoError(t, err)

	b, err := s.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.*.*.*\n192.168.0.0/16\n::1\n", string(b))
}

func TestSource_Refresh(t *testing.T) {
	s, mr := newTestSource(t, time.Millisecond*50)
	_, err := mr.SAdd("ipguard:banned", "10.*.*.*")
	require.NoError(t, err)

	l := make(chanListener, 8)
	require.NoError(t, s.LoadAndAddListener(l))
	assert.Equal(t, "10.*.*.*\n", string(<-l))

	_, err = mr.SAdd("ipguard:banned", "11.*.*.*")
	require.NoError(t, err)
	select {
	case b := <-l:
		assert.Equal(t, "10.*.*.*\n11.*.*.*\n", string(b))
	case <-time.After(time.Second * 5):
		t.Fatal("listener was not updated")
	}

	// unchanged set is not pushed again
	require.NoError(t, s.Refresh(context.Background()))
	select {
	case b := <-l:
		t.Fatalf("unexpected update %q", b)
	default:
	}
}

func TestSource_DisableOnError(t *testing.T) {
	s, mr := newTestSource(t, time.Hour)
	mr.SetError("server down")
	assert.Error(t, s.Refresh(context.Background()))
	assert.True(t, s.disabled())

	// disabled client skips refresh silently
	assert.NoError(t, s.Refresh(context.Background()))

	mr.SetError("")
	assert.Eventually(t, func() bool { return !s.disabled() }, time.Second*5, time.Millisecond*50)
}

func TestOpts_Init(t *testing.T) {
	assert.Error(t, (&Opts{}).Init())
	c := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer c.Close()
	assert.Error(t, (&Opts{Client: c}).Init())

	o := Opts{Client: c, Key: "k"}
	require.NoError(t, o.Init())
	assert.Equal(t, time.Second*60, o.RefreshInterval)
	assert.Equal(t, time.Second, o.ClientTimeout)
	assert.NotNil(t, o.Logger)
}
