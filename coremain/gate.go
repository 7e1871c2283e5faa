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
	"fmt"
	"time"

	"github.com/IrineSistiana/ipguard/pkg/gate"
	"github.com/IrineSistiana/ipguard/pkg/ipintern"
	"github.com/IrineSistiana/ipguard/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func (g *Guard) startGate(cfg *GateConfig) error {
	deny, err := g.lookupLists(cfg.Deny)
	if err != nil {
		return err
	}
	allow, err := g.lookupLists(cfg.Allow)
	if err != nil {
		return err
	}
	proxies, err := g.lookupLists(cfg.TrustedProxies)
	if err != nil {
		return err
	}

	reg := prometheus.WrapRegistererWithPrefix("gate_", g.GetMetricsReg())
	g.interner = ipintern.New(cfg.InternSize)
	metrics.NewGaugeFunc(reg, "interned_addresses", "The number of interned client addresses", func() float64 {
		return float64(g.interner.Len())
	})

	gt, err := gate.New(gate.Opts{
		Backend:        cfg.Backend,
		Deny:           deny,
		Allow:          allow,
		TrustedProxies: proxies,
		IdleTimeout:    time.Duration(cfg.IdleTimeout) * time.Second,
		DialTimeout:    time.Duration(cfg.DialTimeout) * time.Second,
		Interner:       g.interner,
		Metrics:        metrics.NewGateCollector(reg),
		Logger:         g.logger.Named("gate"),
	})
	if err != nil {
		return err
	}
	g.gate = gt

	g.logger.Info("starting gate", zap.String("listen", cfg.Listen), zap.String("backend", cfg.Backend))
	g.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		errChan := make(chan error, 1)
		go func() {
			errChan <- gt.ListenAndServe(cfg.Listen)
		}()
		select {
		case err := <-errChan:
			g.sc.SendCloseSignal(fmt.Errorf("gate exited, %w", err))
		case <-closeSignal:
			_ = gt.Close()
		}
	})
	return nil
}
