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

// Package redis_source loads rule list lines from a redis set so that a
// fleet of gates can share one ban list.
package redis_source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IrineSistiana/ipguard/pkg/data_provider"
	"github.com/IrineSistiana/ipguard/pkg/safe_close"
	"github.com/IrineSistiana/ipguard/pkg/utils"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var nopLogger = zap.NewNop()

type Opts struct {
	// Client cannot be nil.
	Client redis.Cmdable

	// ClientCloser closes Client when Source.Close is called.
	// Optional.
	ClientCloser io.Closer

	// Key is the redis set that holds the list lines, required.
	Key string

	// RefreshInterval is the interval between two reloads.
	// Default is 60s.
	RefreshInterval time.Duration

	// ClientTimeout specifies the timeout for each redis command.
	// Default is 1s.
	ClientTimeout time.Duration

	// Logger is the *zap.Logger for this Source.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *Opts) Init() error {
	if opts.Client == nil {
		return errors.New("nil client")
	}
	if len(opts.Key) == 0 {
		return errors.New("empty key")
	}
	utils.SetDefaultNum(&opts.RefreshInterval, time.Second*60)
	utils.SetDefaultNum(&opts.ClientTimeout, time.Second)
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Source polls a redis set and pushes its members, one per line, to
// listeners whenever the set changes.
type Source struct {
	opts           Opts
	clientDisabled uint32

	sf singleflight.Group

	lm        sync.Mutex
	listeners map[data_provider.DataListener]struct{}
	last      []byte

	sc *safe_close.SafeClose
}

// New returns a started Source.
func New(opts Opts) (*Source, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	s := &Source{
		opts:      opts,
		listeners: make(map[data_provider.DataListener]struct{}),
		sc:        safe_close.NewSafeClose(),
	}
	s.sc.Attach(s.refreshLoop)
	return s, nil
}

// NewFromURL opens a client from a redis url, e.g. "redis://127.0.0.1:6379/0".
func NewFromURL(url, key string, interval time.Duration, lg *zap.Logger) (*Source, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	s, err := New(Opts{
		Client:          c,
		ClientCloser:    c,
		Key:             key,
		RefreshInterval: interval,
		Logger:          lg,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) disabled() bool {
	return atomic.LoadUint32(&s.clientDisabled) != 0
}

func (s *Source) disableClient() {
	if atomic.CompareAndSwapUint32(&s.clientDisabled, 0, 1) {
		s.opts.Logger.Warn("redis temporarily disabled", zap.String("key", s.opts.Key))
		s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			const maxBackoff = time.Second * 30
			backoff := time.Millisecond * 100
			for {
				select {
				case <-time.After(backoff):
				case <-closeSignal:
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*500)
				err := s.opts.Client.Ping(ctx).Err()
				cancel()
				if err != nil {
					if backoff >= maxBackoff {
						backoff = maxBackoff
					} else {
						backoff += time.Duration(rand.Intn(1000))*time.Millisecond + time.Second
					}
					s.opts.Logger.Warn("redis ping failed", zap.Error(err), zap.Duration("next_ping", backoff))
					continue
				}
				atomic.StoreUint32(&s.clientDisabled, 0)
				return
			}
		})
	}
}

// Fetch reads the set. Members are sorted and joined by "\n".
// Concurrent calls share one redis round trip.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	v, err, _ := s.sf.Do(s.opts.Key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.opts.ClientTimeout)
		defer cancel()
		members, err := s.opts.Client.SMembers(ctx, s.opts.Key).Result()
		if err != nil {
			return nil, err
		}
		sort.Strings(members)
		b := new(bytes.Buffer)
		for _, m := range members {
			b.WriteString(m)
			b.WriteByte('\n')
		}
		return b.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// LoadAndAddListener loads the current data into l and adds l to
// this Source.
func (s *Source) LoadAndAddListener(l data_provider.DataListener) error {
	b, err := s.Fetch(context.Background())
	if err != nil {
		return err
	}
	if err := l.Update(b); err != nil {
		return err
	}
	s.lm.Lock()
	s.listeners[l] = struct{}{}
	if s.last == nil {
		s.last = b
	}
	s.lm.Unlock()
	return nil
}

// Refresh fetches the set and pushes it to listeners if it was changed.
func (s *Source) Refresh(ctx context.Context) error {
	if s.disabled() {
		return nil
	}
	b, err := s.Fetch(ctx)
	if err != nil {
		s.disableClient()
		return err
	}

	s.lm.Lock()
	if s.last != nil && bytes.Equal(s.last, b) {
		s.lm.Unlock()
		return nil
	}
	s.last = b
	ls := make([]data_provider.DataListener, 0, len(s.listeners))
	for l := range s.listeners {
		ls = append(ls, l)
	}
	s.lm.Unlock()

	s.opts.Logger.Info("redis set changed", zap.String("key", s.opts.Key), zap.Int("size", len(b)))
	for _, l := range ls {
		if err := l.Update(b); err != nil {
			s.opts.Logger.Error("failed to update data listener", zap.String("key", s.opts.Key), zap.Error(err))
		}
	}
	return nil
}

func (s *Source) refreshLoop(done func(), closeSignal <-chan struct{}) {
	defer done()
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Refresh(context.Background()); err != nil {
				s.opts.Logger.Warn("failed to refresh redis set", zap.String("key", s.opts.Key), zap.Error(err))
			}
		case <-closeSignal:
			return
		}
	}
}

// Close stops the refresh loop and closes the redis client.
func (s *Source) Close() error {
	s.sc.Done()
	s.sc.CloseWait()
	if f := s.opts.ClientCloser; f != nil {
		return f.Close()
	}
	return nil
}
