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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/IrineSistiana/ipguard/mlog"
	"github.com/IrineSistiana/ipguard/pkg/data_provider"
	"github.com/IrineSistiana/ipguard/pkg/gate"
	"github.com/IrineSistiana/ipguard/pkg/ipintern"
	"github.com/IrineSistiana/ipguard/pkg/matcher/patternlist"
	"github.com/IrineSistiana/ipguard/pkg/metrics"
	"github.com/IrineSistiana/ipguard/pkg/redis_source"
	"github.com/IrineSistiana/ipguard/pkg/safe_close"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// ErrListNotFound is returned when a tag refers to an unknown list.
var ErrListNotFound = errors.New("list not found")

const inlineSource = "inline"

type Guard struct {
	logger *zap.Logger // non-nil logger.

	lists    map[string]*patternlist.Set
	dm       *data_provider.DataManager
	redis    []*redis_source.Source
	interner *ipintern.Interner
	gate     *gate.Gate

	httpMux    *chi.Mux
	metricsReg *prometheus.Registry
	sc         *safe_close.SafeClose
}

// NewGuard initializes a guard instance, its lists and starts its servers.
func NewGuard(cfg *Config) (*Guard, error) {
	// Init logger.
	lg, err := mlog.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	g := newGuard(lg)
	// This must be called after g.httpMux and g.metricsReg been set.
	g.initHttpMux()

	// Close all sources and servers on signal.
	// From here, call g.sc.SendCloseSignal() if anything failed to load.
	g.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		go func() {
			defer done()
			<-closeSignal
			g.logger.Info("starting shutdown sequences")
			g.closeAll()
			g.logger.Info("all components were closed")
		}()
	})

	if err := g.loadLists(cfg.Lists); err != nil {
		g.sc.SendCloseSignal(err)
		return nil, err
	}
	g.logger.Info("all lists are loaded", zap.Int("lists", len(g.lists)))

	// Start http api server
	if httpAddr := cfg.API.HTTP; len(httpAddr) > 0 {
		httpServer := &http.Server{
			Addr:    httpAddr,
			Handler: g.httpMux,
		}
		g.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
			defer done()
			errChan := make(chan error, 1)
			go func() {
				g.logger.Info("starting api http server", zap.String("addr", httpAddr))
				errChan <- httpServer.ListenAndServe()
			}()
			select {
			case err := <-errChan:
				g.sc.SendCloseSignal(err)
			case <-closeSignal:
				_ = httpServer.Close()
			}
		})
	}

	if len(cfg.Gate.Listen) > 0 {
		if err := g.startGate(&cfg.Gate); err != nil {
			g.sc.SendCloseSignal(err)
			return nil, fmt.Errorf("failed to start gate, %w", err)
		}
	}
	return g, nil
}

func newGuard(lg *zap.Logger) *Guard {
	return &Guard{
		logger:     lg,
		lists:      make(map[string]*patternlist.Set),
		dm:         data_provider.NewDataManager(lg.Named("data_provider")),
		httpMux:    chi.NewRouter(),
		metricsReg: newMetricsReg(),
		sc:         safe_close.NewSafeClose(),
	}
}

// NewTestGuardWithLists returns a guard instance for testing.
func NewTestGuardWithLists(lists map[string]*patternlist.Set) *Guard {
	g := newGuard(mlog.Nop())
	for tag, l := range lists {
		g.lists[tag] = l
	}
	g.initHttpMux()
	return g
}

func (g *Guard) GetSafeClose() *safe_close.SafeClose {
	return g.sc
}

// CloseWithErr is a shortcut for g.sc.SendCloseSignal
func (g *Guard) CloseWithErr(err error) {
	g.sc.SendCloseSignal(err)
}

// Logger returns a non-nil logger.
func (g *Guard) Logger() *zap.Logger {
	return g.logger
}

// GetList returns a list.
func (g *Guard) GetList(tag string) *patternlist.Set {
	return g.lists[tag]
}

// GetMetricsReg returns a prometheus.Registerer with a prefix of "ipguard_"
func (g *Guard) GetMetricsReg() prometheus.Registerer {
	return prometheus.WrapRegistererWithPrefix("ipguard_", g.metricsReg)
}

func newMetricsReg() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func (g *Guard) loadLists(lcs []ListConfig) error {
	for i, lc := range lcs {
		if err := g.loadList(lc); err != nil {
			return fmt.Errorf("failed to init list #%d %s, %w", i, lc.Tag, err)
		}
	}
	return nil
}

func (g *Guard) loadList(lc ListConfig) error {
	if err := checkTag(lc.Tag); err != nil {
		return err
	}
	if _, dup := g.lists[lc.Tag]; dup {
		return fmt.Errorf("duplicated list tag %s", lc.Tag)
	}

	s, err := patternlist.NewSet(patternlist.SetOpts{
		Tag:       lc.Tag,
		CacheSize: lc.CacheSize,
		Logger:    g.logger.Named("list"),
		Metrics:   metrics.NewListCollector(g.listMetricsReg(lc.Tag)),
	})
	if err != nil {
		return err
	}
	g.lists[lc.Tag] = s

	if len(lc.Patterns) > 0 {
		if _, err := s.Update(inlineSource, []byte(strings.Join(lc.Patterns, "\n"))); err != nil {
			return err
		}
	}

	for _, fc := range lc.Files {
		dp, err := g.dm.GetOrOpen(fc)
		if err != nil {
			return fmt.Errorf("failed to open file %s, %w", fc.File, err)
		}
		if err := dp.LoadAndAddListener(s.SourceListener(fc.File)); err != nil {
			return fmt.Errorf("failed to load file %s, %w", fc.File, err)
		}
	}

	if rc := lc.Redis; rc != nil {
		rs, err := redis_source.NewFromURL(rc.URL, rc.Key, time.Duration(rc.RefreshInterval)*time.Second, g.logger.Named("redis"))
		if err != nil {
			return fmt.Errorf("failed to init redis source, %w", err)
		}
		g.redis = append(g.redis, rs)
		if err := rs.LoadAndAddListener(s.SourceListener("redis:" + rc.Key)); err != nil {
			return fmt.Errorf("failed to load redis set %s, %w", rc.Key, err)
		}
	}
	return nil
}

// listMetricsReg returns a registerer for the collectors of list tag.
// The tag is a label value, so any tag makes valid metric names.
func (g *Guard) listMetricsReg(tag string) prometheus.Registerer {
	return prometheus.WrapRegistererWith(
		prometheus.Labels{"list": tag},
		prometheus.WrapRegistererWithPrefix("list_", g.GetMetricsReg()),
	)
}

func (g *Guard) lookupLists(tags []string) ([]gate.List, error) {
	ls := make([]gate.List, 0, len(tags))
	for _, tag := range tags {
		l := g.lists[tag]
		if l == nil {
			return nil, fmt.Errorf("%w: %s", ErrListNotFound, tag)
		}
		ls = append(ls, l)
	}
	return ls, nil
}

func (g *Guard) closeAll() {
	if g.gate != nil {
		_ = g.gate.Close()
	}
	for _, rs := range g.redis {
		_ = rs.Close()
	}
	g.dm.Close()
}
