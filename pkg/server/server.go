/*
 * Copyright (c) 2018. LuCongyao <6congyao@gmail.com> .
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this work except in compliance with the License.
 * You may obtain a copy of the License in the LICENSE file, or at:
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"

	"kiln/pkg/api/v2"
	"kiln/pkg/buffer"
	"kiln/pkg/evio"
	"kiln/pkg/log"
	"kiln/pkg/network"
	"kiln/pkg/protocol/http/v1"
	"kiln/pkg/sync"
)

// Server accepts connections on its listeners and serves HTTP/1.x requests
// on a single event loop. Handlers and listeners are registered before
// Serve, and never change while serving.
type Server struct {
	config Config

	loop    *evio.Loop
	workers sync.WorkerPool
	handler *connHandler

	mu       stdsync.Mutex
	handlers []RequestHandler
	missing  MissingHandler
	upgrades *upgradeDispatcher

	registry metrics.Registry
	stats    *serverStats

	serving   int32
	closed    int32
	closeOnce stdsync.Once
}

// NewServer creates a server, a nil config selects the defaults.
func NewServer(config *Config) *Server {
	var c Config
	if config != nil {
		c = *config
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = network.DefaultBufferReadCapacity
	}
	if c.TransferBufferSize <= 0 {
		c.TransferBufferSize = buffer.DefaultTransferSize
	}
	if c.IOWorkers <= 0 {
		c.IOWorkers = DefaultIOWorkers
	}

	registry := metrics.NewRegistry()
	srv := &Server{
		config:   c,
		loop:     evio.NewLoop(),
		workers:  sync.NewWorkerPool(c.IOWorkers, 0),
		missing:  defaultMissingHandler,
		upgrades: newUpgradeDispatcher(),
		registry: registry,
		stats:    newServerStats(registry),
	}
	srv.handler = newHandler(srv)
	srv.loop.PanicHandler = func(p interface{}) {
		log.DefaultLogger.Errorf("server %s: event loop recovered from panic: %v", c.ServerName, p)
	}
	return srv
}

// Config returns the effective configuration
func (srv *Server) Config() Config {
	return srv.config
}

// Metrics returns the registry holding the server metrics
func (srv *Server) Metrics() metrics.Registry {
	return srv.registry
}

// Scheduler returns the event loop serving the connections. Handlers
// completing a response later must do it through Post.
func (srv *Server) Scheduler() evio.Scheduler {
	return srv.loop
}

// NumConnections reports the connections being served
func (srv *Server) NumConnections() uint64 {
	return srv.handler.NumConnections()
}

// Listen binds a listener on address and port, port 0 picks a free one.
// The bound port is returned.
func (srv *Server) Listen(address string, port int) (int, error) {
	_, l, err := srv.AddListener(&v2.ListenerConfig{
		AddrConfig: net.JoinHostPort(address, strconv.Itoa(port)),
	})
	if err != nil {
		return 0, err
	}
	return portOf(l.Addr()), nil
}

// Bind adopts l, which the server then owns. A nil l binds a listener on a
// free port of every interface.
func (srv *Server) Bind(l net.Listener) error {
	if l == nil {
		_, err := srv.Listen("", 0)
		return err
	}
	if err := srv.checkSetup(); err != nil {
		return err
	}

	lc := &v2.Listener{InheritListener: l}
	if addr := l.Addr(); addr != nil {
		lc.AddrConfig = addr.String()
		lc.Addr = addr
	} else {
		log.DefaultLogger.Warnf("server %s: bound listener has no address", srv.config.ServerName)
	}
	_, err := srv.handler.AddListener(lc)
	return err
}

// AddListener binds a configured listener. The listener inherited by lc,
// if any, is adopted instead.
func (srv *Server) AddListener(lc *v2.ListenerConfig) (*v2.Listener, network.Listener, error) {
	if err := srv.checkSetup(); err != nil {
		return nil, nil, err
	}
	if lc.AddrConfig == "" {
		return nil, nil, ErrNoAddress
	}
	addr, err := net.ResolveTCPAddr("tcp", lc.AddrConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("listener address %s: %w", lc.AddrConfig, err)
	}

	listener := &v2.Listener{ListenerConfig: *lc, Addr: addr}
	al, err := srv.handler.AddListener(listener)
	if err != nil {
		return nil, nil, err
	}
	return listener, al.listener, nil
}

// Servers returns the listening sockets
func (srv *Server) Servers() []net.Listener {
	return srv.handler.RawListeners()
}

// Handle appends h to the handlers, which are asked in registration order.
func (srv *Server) Handle(h RequestHandler) error {
	if err := srv.checkSetup(); err != nil {
		return err
	}
	srv.mu.Lock()
	srv.handlers = append(srv.handlers, h)
	srv.mu.Unlock()
	return nil
}

// HandleFunc appends a function handler.
func (srv *Server) HandleFunc(f func(req *v1.Request, resp *v1.Response) bool) error {
	return srv.Handle(RequestHandlerFunc(f))
}

// OnMissingHandler replaces the answer to unclaimed requests, 404 by default.
func (srv *Server) OnMissingHandler(h MissingHandler) error {
	if err := srv.checkSetup(); err != nil {
		return err
	}
	if h == nil {
		h = defaultMissingHandler
	}
	srv.mu.Lock()
	srv.missing = h
	srv.mu.Unlock()
	return nil
}

// RegisterUpgrade registers h for the protocol named by the Upgrade header,
// compared case-insensitively.
func (srv *Server) RegisterUpgrade(protocol string, h UpgradeHandler) error {
	if err := srv.checkSetup(); err != nil {
		return err
	}
	return srv.upgrades.register(protocol, h)
}

// Serve runs the event loop on the calling goroutine until ctx is done or
// Close is called.
func (srv *Server) Serve(ctx context.Context) error {
	if atomic.LoadInt32(&srv.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&srv.serving, 0, 1) {
		return ErrServing
	}
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		select {
		case <-ctx.Done():
			srv.Close()
		case <-srv.loop.Done():
		}
	}()

	srv.handler.StartListeners(ctx)
	log.DefaultLogger.Infof("server %s: serving on %s", srv.config.ServerName, strings.Join(srv.handler.Addresses(), ", "))
	return srv.loop.Run()
}

// Close stops accepting, lets the connections finish their response within
// the graceful timeout, then closes what is left. It must not be called
// from a handler.
func (srv *Server) Close() error {
	srv.closeOnce.Do(func() {
		atomic.StoreInt32(&srv.closed, 1)
		srv.handler.StopListeners(context.Background(), true)

		if atomic.LoadInt32(&srv.serving) == 1 {
			srv.loop.Post(srv.handler.drainConnections)
			if !srv.handler.WaitConnectionsDone(srv.config.GracefulTimeout) {
				log.DefaultLogger.Warnf("server %s: closing %d connections after the graceful timeout",
					srv.config.ServerName, srv.handler.NumConnections())
			}
			closed := make(chan struct{})
			if srv.loop.Post(func() {
				srv.handler.closeConnections()
				close(closed)
			}) {
				select {
				case <-closed:
				case <-time.After(time.Second):
				}
			}
		}

		srv.loop.Stop()
		srv.workers.Release()
		log.DefaultLogger.Infof("server %s: closed", srv.config.ServerName)
	})
	return nil
}

// checkSetup rejects registrations once serving started
func (srv *Server) checkSetup() error {
	if atomic.LoadInt32(&srv.closed) == 1 {
		return ErrServerClosed
	}
	if atomic.LoadInt32(&srv.serving) == 1 {
		return ErrServing
	}
	return nil
}

func (srv *Server) requestHandlers() ([]RequestHandler, MissingHandler) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.handlers, srv.missing
}

func portOf(addr net.Addr) int {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.Port
	case nil:
		return 0
	}
	if _, p, err := net.SplitHostPort(addr.String()); err == nil {
		port, _ := strconv.Atoi(p)
		return port
	}
	return 0
}
