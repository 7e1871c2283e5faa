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
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/IrineSistiana/ipguard/pkg/safe_close"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DataManager shares one DataProvider per file between rule lists.
type DataManager struct {
	logger *zap.Logger

	pm sync.Mutex
	ps map[string]*DataProvider
}

type DataListener interface {
	Update(newData []byte) error
}

func NewDataManager(lg *zap.Logger) *DataManager {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &DataManager{
		logger: lg,
		ps:     make(map[string]*DataProvider),
	}
}

// GetOrOpen returns the DataProvider of cfg.File. A new one is opened if
// there is none. If any caller asks for auto reload, the file is watched.
func (m *DataManager) GetOrOpen(cfg DataProviderConfig) (*DataProvider, error) {
	m.pm.Lock()
	defer m.pm.Unlock()
	if p := m.ps[cfg.File]; p != nil {
		if cfg.AutoReload && !p.autoReload {
			if err := p.startFsWatcher(); err != nil {
				return nil, fmt.Errorf("failed to start fs watcher, %w", err)
			}
			p.autoReload = true
		}
		return p, nil
	}
	p, err := NewDataProvider(m.logger, cfg)
	if err != nil {
		return nil, err
	}
	m.ps[cfg.File] = p
	return p, nil
}

// Close closes all DataProvider(s).
func (m *DataManager) Close() {
	m.pm.Lock()
	defer m.pm.Unlock()
	for _, p := range m.ps {
		p.Close()
	}
}

type DataProviderConfig struct {
	File       string `yaml:"path"`
	AutoReload bool   `yaml:"auto_reload"`
}

type DataProvider struct {
	logger     *zap.Logger
	file       string
	autoReload bool

	lm        sync.Mutex
	listeners map[DataListener]struct{}

	sc *safe_close.SafeClose
}

func NewDataProvider(lg *zap.Logger, cfg DataProviderConfig) (*DataProvider, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	dp := &DataProvider{
		logger:     lg,
		file:       cfg.File,
		autoReload: cfg.AutoReload,
		listeners:  make(map[DataListener]struct{}),
		sc:         safe_close.NewSafeClose(),
	}

	if err := dp.init(); err != nil {
		return nil, err
	}
	return dp, nil
}

func (ds *DataProvider) init() error {
	_, err := ds.loadFromDisk()
	if err != nil {
		return err
	}

	if ds.autoReload {
		if err := ds.startFsWatcher(); err != nil {
			return fmt.Errorf("failed to start fs watcher, %w", err)
		}
	}
	return nil
}

func (ds *DataProvider) Close() {
	ds.sc.Done()
	ds.sc.CloseWait()
}

// LoadAndAddListener loads the DataListener, returns any error that occurs, and
// add this DataListener to this DataProvider.
func (ds *DataProvider) LoadAndAddListener(l DataListener) error {
	b, err := ds.GetData()
	if err != nil {
		return err
	}

	if err := l.Update(b); err != nil {
		return err
	}

	ds.lm.Lock()
	ds.listeners[l] = struct{}{}
	ds.lm.Unlock()
	return nil
}

func (ds *DataProvider) GetData() ([]byte, error) {
	return ds.loadFromDisk()
}

// pushData triggers all listeners.
func (ds *DataProvider) pushData(newData []byte) {
	ds.lm.Lock()
	ls := make([]DataListener, 0, len(ds.listeners))
	for listener := range ds.listeners {
		ls = append(ls, listener)
	}
	ds.lm.Unlock()

	for _, l := range ls {
		if err := l.Update(newData); err != nil {
			ds.logger.Error(
				"failed to update data listener",
				zap.String("file", ds.file),
				zap.Error(err),
			)
		}
	}
}

func (ds *DataProvider) loadFromDisk() ([]byte, error) {
	return os.ReadFile(ds.file)
}

const reloadDelay = time.Second

func (ds *DataProvider) startFsWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ds.file); err != nil {
		w.Close()
		return err
	}

	ds.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		defer w.Close()

		var delayReloadTimer *time.Timer
		defer func() {
			if delayReloadTimer != nil {
				delayReloadTimer.Stop()
			}
		}()
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				ds.logger.Info(
					"fs event",
					zap.Stringer("event", e.Op),
					zap.String("file", e.Name),
				)

				if delayReloadTimer != nil {
					delayReloadTimer.Stop()
				}
				delayReloadTimer = time.AfterFunc(reloadDelay, func() {
					if hasOp(e, fsnotify.Remove) || hasOp(e, fsnotify.Rename) {
						_ = w.Remove(ds.file)
						if err := w.Add(ds.file); err != nil {
							ds.logger.Error(
								"failed to re-watch file, auto reload may not work anymore",
								zap.String("file", ds.file),
								zap.Error(err),
							)
						}
					}

					ds.logger.Info(
						"reloading file",
						zap.String("file", ds.file),
					)
					if v, err := ds.loadFromDisk(); err != nil {
						ds.logger.Error(
							"failed to reload file",
							zap.String("file", ds.file),
							zap.Error(err),
						)
					} else {
						ds.logger.Info(
							"file reloaded",
							zap.String("file", ds.file),
						)
						ds.pushData(v)
					}
				})

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				ds.logger.Error("fs notify error", zap.Error(err))
			case <-closeSignal:
				return
			}
		}
	})
	return nil
}

func hasOp(e fsnotify.Event, op fsnotify.Op) bool {
	return e.Op&op == op
}
