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
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/netip"
	"strconv"

	"github.com/IrineSistiana/ipguard/pkg/ipmatch"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// initHttpMux initializes api entries. It MUST be called after g.metricsReg being initialized.
func (g *Guard) initHttpMux() {
	// Register metrics.
	g.httpMux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.metricsReg, promhttp.HandlerOpts{}))

	// Register pprof.
	g.httpMux.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/*", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
	})

	g.httpMux.Route("/api", func(r chi.Router) {
		r.Get("/match", g.handleMatch)
		r.Get("/validate", g.handleValidate)
		r.Get("/cidr", g.handleCIDR)
		r.Get("/lists/{tag}/match", g.handleListMatch)
	})

	// A helper page for invalid request.
	invalidApiReqHelper := func(w http.ResponseWriter, req *http.Request) {
		b := new(bytes.Buffer)
		_, _ = fmt.Fprintf(b, "Invalid request %s %s\n\n", req.Method, req.RequestURI)
		b.WriteString("Available api urls:\n")
		_ = chi.Walk(g.httpMux, func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			b.WriteString(method)
			b.WriteByte(' ')
			b.WriteString(route)
			b.WriteByte('\n')
			return nil
		})
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write(b.Bytes())
	}
	g.httpMux.NotFound(invalidApiReqHelper)
	g.httpMux.MethodNotAllowed(invalidApiReqHelper)
}

type matchResp struct {
	Matched bool `json:"matched"`
	Valid   bool `json:"valid"`
}

type validateResp struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type cidrResp struct {
	Matched bool `json:"matched"`
}

type listMatchResp struct {
	Matched bool   `json:"matched"`
	Entry   string `json:"entry,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Source  string `json:"source,omitempty"`
}

func (g *Guard) handleMatch(w http.ResponseWriter, req *http.Request) {
	addr, ok := g.parseAddrParam(w, req, "ip")
	if !ok {
		return
	}
	matched, valid := ipmatch.MatchValid(req.URL.Query().Get("pattern"), addr)
	g.writeJSON(w, matchResp{Matched: matched, Valid: valid})
}

func (g *Guard) handleValidate(w http.ResponseWriter, req *http.Request) {
	resp := validateResp{Valid: true}
	if err := ipmatch.Check(req.URL.Query().Get("pattern")); err != nil {
		resp = validateResp{Valid: false, Error: err.Error()}
	}
	g.writeJSON(w, resp)
}

func (g *Guard) handleCIDR(w http.ResponseWriter, req *http.Request) {
	network, ok := g.parseAddrParam(w, req, "network")
	if !ok {
		return
	}
	addr, ok := g.parseAddrParam(w, req, "ip")
	if !ok {
		return
	}
	bits, err := strconv.Atoi(req.URL.Query().Get("bits"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid bits: %v", err), http.StatusBadRequest)
		return
	}
	g.writeJSON(w, cidrResp{Matched: ipmatch.MatchCIDR(network, addr, bits)})
}

func (g *Guard) handleListMatch(w http.ResponseWriter, req *http.Request) {
	tag := chi.URLParam(req, "tag")
	l := g.GetList(tag)
	if l == nil {
		http.Error(w, fmt.Sprintf("%s: %s", ErrListNotFound, tag), http.StatusNotFound)
		return
	}
	addr, ok := g.parseAddrParam(w, req, "ip")
	if !ok {
		return
	}
	resp := listMatchResp{}
	if e, ok := l.Lookup(addr); ok {
		resp = listMatchResp{Matched: true, Entry: e.Text, Kind: e.Kind.String(), Source: e.Source}
	}
	g.writeJSON(w, resp)
}

func (g *Guard) parseAddrParam(w http.ResponseWriter, req *http.Request, key string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(req.URL.Query().Get(key))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s: %v", key, err), http.StatusBadRequest)
		return netip.Addr{}, false
	}
	return addr, true
}

func (g *Guard) writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		g.logger.Error("failed to encode json", zap.Error(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(b); err != nil {
		g.logger.Warn("http write err", zap.Error(err))
	}
}
