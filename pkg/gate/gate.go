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

// Package gate is a tcp front of a game server. It only relays
// connections whose client address passes the configured rule lists.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/IrineSistiana/ipguard/pkg/ipintern"
	"github.com/IrineSistiana/ipguard/pkg/matcher/patternlist"
	"github.com/IrineSistiana/ipguard/pkg/metrics"
	"github.com/IrineSistiana/ipguard/pkg/utils"
	"github.com/pires/go-proxyproto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrServerClosed = errors.New("gate closed")

	nopLogger = zap.NewNop()
)

const (
	defaultIdleTimeout        = time.Second * 300
	defaultDialTimeout        = time.Second * 5
	defaultProxyHeaderTimeout = time.Second * 5
)

// List is a rule list. *patternlist.Set implements it.
type List interface {
	Tag() string
	Lookup(addr netip.Addr) (patternlist.Entry, bool)
}

type Opts struct {
	// Backend is the "host:port" of the game server, required.
	Backend string

	// Deny lists. A client that matches any of them is rejected.
	Deny []List

	// Allow lists. If not empty, a client must match one of them.
	Allow []List

	// TrustedProxies lists upstreams whose PROXY protocol header is used
	// as the client address. A PROXY header from any other upstream is
	// rejected. If empty, PROXY protocol is disabled.
	TrustedProxies []List

	// IdleTimeout limits the maximum time period that a connection
	// can idle. Default is 300s.
	IdleTimeout time.Duration

	// DialTimeout limits the time to connect to the backend. Default is 5s.
	DialTimeout time.Duration

	// ProxyHeaderTimeout limits the time to read the PROXY header from a
	// trusted upstream. Default is 5s.
	ProxyHeaderTimeout time.Duration

	// Interner is optional.
	Interner *ipintern.Interner

	// Metrics is optional.
	Metrics *metrics.GateCollector

	// Logger is the *zap.Logger for this Gate.
	// A nil Logger will disable logging.
	Logger *zap.Logger
}

func (opts *Opts) Init() error {
	if len(opts.Backend) == 0 {
		return errors.New("empty backend")
	}
	utils.SetDefaultNum(&opts.IdleTimeout, defaultIdleTimeout)
	utils.SetDefaultNum(&opts.DialTimeout, defaultDialTimeout)
	utils.SetDefaultNum(&opts.ProxyHeaderTimeout, defaultProxyHeaderTimeout)
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Gate relays allowed client connections to Opts.Backend.
// Gate.Serve blocks and always returns a non-nil error. If Gate was
// closed, the returned err will be ErrServerClosed.
type Gate struct {
	opts Opts

	m             sync.Mutex
	closed        bool
	closerTracker map[*io.Closer]struct{}
}

func New(opts Opts) (*Gate, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	return &Gate{opts: opts}, nil
}

// Decision is the result of Gate.Check.
type Decision struct {
	Allowed bool

	// Reason is one of the metrics.Reason* values if not Allowed.
	Reason string

	// List and Entry are the rule that rejected the client, if any.
	List  string
	Entry patternlist.Entry
}

// Check decides whether a client from addr may pass.
// Invalid addresses never pass.
func (g *Gate) Check(addr netip.Addr) Decision {
	if !addr.IsValid() {
		return Decision{Reason: metrics.ReasonInvalidAddr}
	}
	for _, l := range g.opts.Deny {
		if e, ok := l.Lookup(addr); ok {
			return Decision{Reason: metrics.ReasonDenied, List: l.Tag(), Entry: e}
		}
	}
	if len(g.opts.Allow) == 0 {
		return Decision{Allowed: true}
	}
	for _, l := range g.opts.Allow {
		if _, ok := l.Lookup(addr); ok {
			return Decision{Allowed: true}
		}
	}
	return Decision{Reason: metrics.ReasonNotAllowed}
}

func (g *Gate) trusted(upstream net.Addr) bool {
	addr := utils.GetAddrFromAddr(upstream)
	for _, l := range g.opts.TrustedProxies {
		if _, ok := l.Lookup(addr); ok {
			return true
		}
	}
	return false
}

func (g *Gate) proxyPolicy(upstream net.Addr) (proxyproto.Policy, error) {
	if g.trusted(upstream) {
		return proxyproto.USE, nil
	}
	return proxyproto.REJECT, nil
}

// ListenAndServe listens on the tcp address addr and calls Serve.
func (g *Gate) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return g.Serve(l)
}

// Serve accepts connections on l. It closes l before it returns.
func (g *Gate) Serve(l net.Listener) error {
	if len(g.opts.TrustedProxies) > 0 {
		l = &proxyproto.Listener{
			Listener:          l,
			Policy:            g.proxyPolicy,
			ReadHeaderTimeout: g.opts.ProxyHeaderTimeout,
		}
	}
	defer l.Close()

	closer := l.(io.Closer)
	if ok := g.trackCloser(&closer, true); !ok {
		return ErrServerClosed
	}
	defer g.trackCloser(&closer, false)

	g.opts.Logger.Info("gate started", zap.Stringer("addr", l.Addr()), zap.String("backend", g.opts.Backend))
	for {
		c, err := l.Accept()
		if err != nil {
			if g.Closed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("unexpected listener err: %w", err)
		}
		go g.handleConn(c)
	}
}

// clientAddr returns the address of the client behind c.
func (g *Gate) clientAddr(c net.Conn) (netip.Addr, error) {
	pc, ok := c.(*proxyproto.Conn)
	if !ok {
		return utils.GetAddrFromAddr(c.RemoteAddr()), nil
	}
	raw := pc.Raw()
	if !g.trusted(raw.RemoteAddr()) {
		// A PROXY header, if any, fails the first read of the relay.
		return utils.GetAddrFromAddr(raw.RemoteAddr()), nil
	}
	addr := utils.GetAddrFromAddr(pc.RemoteAddr())
	if _, err := pc.Read(nil); err != nil {
		return netip.Addr{}, err
	}
	return addr, nil
}

func (g *Gate) handleConn(c net.Conn) {
	defer c.Close()

	closer := c.(io.Closer)
	if !g.trackCloser(&closer, true) {
		return
	}
	defer g.trackCloser(&closer, false)

	lg := g.opts.Logger
	upstream := c.RemoteAddr()
	if pc, ok := c.(*proxyproto.Conn); ok {
		upstream = pc.Raw().RemoteAddr()
	}

	addr, err := g.clientAddr(c)
	if err != nil {
		lg.Warn("bad proxy header", zap.Stringer("upstream", upstream), zap.Error(err))
		g.reject(metrics.ReasonBadProxy)
		return
	}
	if g.opts.Interner != nil {
		addr = g.opts.Interner.Intern(addr)
	}

	d := g.Check(addr)
	if !d.Allowed {
		lg.Info(
			"connection rejected",
			zap.Stringer("client", addr),
			zap.Stringer("upstream", upstream),
			zap.String("reason", d.Reason),
			zap.String("list", d.List),
			zap.String("entry", d.Entry.Text),
		)
		g.reject(d.Reason)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.DialTimeout)
	defer cancel()
	start := time.Now()
	var dialer net.Dialer
	backend, err := dialer.DialContext(ctx, "tcp", g.opts.Backend)
	if err != nil {
		lg.Warn("failed to dial backend", zap.Stringer("client", addr), zap.Error(err))
		g.reject(metrics.ReasonDialFailed)
		return
	}
	defer backend.Close()

	bc := backend.(io.Closer)
	if !g.trackCloser(&bc, true) {
		return
	}
	defer g.trackCloser(&bc, false)

	if m := g.opts.Metrics; m != nil {
		m.DialLatency.Observe(float64(time.Since(start).Milliseconds()))
		m.Accepted.Inc()
		m.Active.Inc()
		defer m.Active.Dec()
	}
	lg.Debug("connection accepted", zap.Stringer("client", addr), zap.Stringer("upstream", upstream))

	if err := g.relay(c, backend); err != nil && !g.Closed() {
		lg.Debug("relay ended", zap.Stringer("client", addr), zap.Error(err))
	}
}

func (g *Gate) reject(reason string) {
	if m := g.opts.Metrics; m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

// relay copies data between client and backend until either side
// closes, errors or idles for longer than Opts.IdleTimeout.
func (g *Gate) relay(client, backend net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			client.Close()
			backend.Close()
		})
	}

	eg := new(errgroup.Group)
	pipe := func(dst, src net.Conn, direction string) func() error {
		return func() error {
			defer closeBoth()
			n, err := io.Copy(dst, &idleConn{Conn: src, timeout: g.opts.IdleTimeout})
			if m := g.opts.Metrics; m != nil {
				m.RelayedBytes.WithLabelValues(direction).Add(float64(n))
			}
			return err
		}
	}
	eg.Go(pipe(backend, client, "upstream"))
	eg.Go(pipe(client, backend, "downstream"))
	return eg.Wait()
}

// idleConn extends the read deadline before every read.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

// Closed returns true if gate was closed.
func (g *Gate) Closed() bool {
	g.m.Lock()
	defer g.m.Unlock()
	return g.closed
}

// trackCloser adds or removes c to the Gate and return true if Gate is not closed.
// We use a pointer in case the underlying value is incomparable.
func (g *Gate) trackCloser(c *io.Closer, add bool) bool {
	g.m.Lock()
	defer g.m.Unlock()

	if g.closerTracker == nil {
		g.closerTracker = make(map[*io.Closer]struct{})
	}

	if add {
		if g.closed {
			return false
		}
		g.closerTracker[c] = struct{}{}
	} else {
		delete(g.closerTracker, c)
	}
	return true
}

// Close closes the Gate, its listeners and all relayed connections.
func (g *Gate) Close() error {
	g.m.Lock()
	defer g.m.Unlock()

	if g.closed {
		return nil
	}

	g.closed = true
	for closer := range g.closerTracker {
		(*closer).Close()
	}
	return nil
}
