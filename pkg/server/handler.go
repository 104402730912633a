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
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kiln/pkg/api/v2"
	"kiln/pkg/limit"
	"kiln/pkg/log"
	"kiln/pkg/network"
	"kiln/pkg/types"
)

type connHandler struct {
	srv            *Server
	numConnections int64

	mu        stdsync.Mutex
	listeners []*activeListener

	// owned by the event loop
	sessions map[uint64]*session
	draining bool
}

func newHandler(srv *Server) *connHandler {
	return &connHandler{
		srv:      srv,
		sessions: make(map[uint64]*session),
	}
}

func (ch *connHandler) GenerateListenerID() string {
	return uuid.New().String()
}

// AddListener binds the listener of lc, unless it inherits one.
func (ch *connHandler) AddListener(lc *v2.Listener) (*activeListener, error) {
	if lc.Name == "" {
		lc.Name = ch.GenerateListenerID()
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.findActiveListenerByName(lc.Name) != nil {
		return nil, fmt.Errorf("listener %s already exists", lc.Name)
	}

	l := network.NewListener(lc)
	if err := l.Listen(); err != nil {
		return nil, fmt.Errorf("listener %s: %w", lc.Name, err)
	}

	al, err := newActiveListener(l, lc, ch)
	if err != nil {
		l.Close(context.Background())
		return nil, err
	}
	l.SetListenerCallbacks(al)
	ch.listeners = append(ch.listeners, al)
	log.DefaultLogger.Infof("listener %s bound to %s", lc.Name, l.Addr())
	return al, nil
}

func (ch *connHandler) NumConnections() uint64 {
	return uint64(atomic.LoadInt64(&ch.numConnections))
}

// StartListeners runs the accept loops, async
func (ch *connHandler) StartListeners(lctx context.Context) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, al := range ch.listeners {
		go al.listener.Start(lctx)
	}
}

// StopListeners stops accepting. The close indicates whether the listening
// sockets are closed too.
func (ch *connHandler) StopListeners(lctx context.Context, close bool) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	var errGlobal error
	for _, al := range ch.listeners {
		var err error
		if close {
			err = al.listener.Close(lctx)
		} else {
			err = al.listener.Stop()
		}
		if err != nil {
			errGlobal = err
		}
	}
	return errGlobal
}

func (ch *connHandler) FindListenerByName(name string) network.Listener {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if al := ch.findActiveListenerByName(name); al != nil {
		return al.listener
	}
	return nil
}

func (ch *connHandler) findActiveListenerByName(name string) *activeListener {
	for _, al := range ch.listeners {
		if al.listener.Name() == name {
			return al
		}
	}
	return nil
}

func (ch *connHandler) RawListeners() []net.Listener {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	rawls := make([]net.Listener, 0, len(ch.listeners))
	for _, al := range ch.listeners {
		if rawl := al.listener.RawListener(); rawl != nil {
			rawls = append(rawls, rawl)
		}
	}
	return rawls
}

func (ch *connHandler) Addresses() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	addrs := make([]string, 0, len(ch.listeners))
	for _, al := range ch.listeners {
		if addr := al.listener.Addr(); addr != nil {
			addrs = append(addrs, addr.String())
		}
	}
	return addrs
}

// WaitConnectionsDone waits until no connection is left, false on timeout
func (ch *connHandler) WaitConnectionsDone(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for ch.NumConnections() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
	return true
}

// newSession serves an accepted socket, on the event loop
func (ch *connHandler) newSession(rawc net.Conn, al *activeListener) {
	if ch.draining {
		rawc.Close()
		return
	}

	cfg := ch.srv.config
	conn := network.NewServerConnection(rawc, ch.srv.loop, cfg.ReadBufferSize)
	conn.SetStats(ch.srv.stats.conn)

	ctx := context.WithValue(context.Background(), types.ContextKeyListenerPort, al.listenPort)
	ctx = context.WithValue(ctx, types.ContextKeyListenerName, al.listener.Name())
	ctx = context.WithValue(ctx, types.ContextKeyConnectionID, conn.ID())

	s := newSession(ctx, ch.srv, conn)
	conn.FilterManager().AddReadFilter(s)
	conn.AddConnectionEventListener(s)

	ch.sessions[conn.ID()] = s
	atomic.AddInt64(&ch.numConnections, 1)
	ch.srv.stats.ConnectionsActive.Update(int64(len(ch.sessions)))

	conn.Start(ctx)
}

// removeSession forgets a closed or detached session, on the event loop
func (ch *connHandler) removeSession(s *session) {
	if _, ok := ch.sessions[s.conn.ID()]; !ok {
		return
	}
	delete(ch.sessions, s.conn.ID())
	atomic.AddInt64(&ch.numConnections, -1)
	ch.srv.stats.ConnectionsActive.Update(int64(len(ch.sessions)))
}

// drainConnections closes idle connections and lets busy ones finish their
// response, on the event loop
func (ch *connHandler) drainConnections() {
	ch.draining = true
	for _, s := range ch.sessions {
		s.drain()
	}
}

// closeConnections closes every connection left, on the event loop
func (ch *connHandler) closeConnections() {
	for _, s := range ch.sessions {
		s.conn.Close(network.NoFlush, network.LocalClose)
	}
}

// activeListener is the ListenerEventListener of one listener
type activeListener struct {
	listener   network.Listener
	handler    *connHandler
	limiter    *limit.AcceptLimiter
	listenPort int
}

func newActiveListener(listener network.Listener, lc *v2.Listener, handler *connHandler) (*activeListener, error) {
	al := &activeListener{
		listener:   listener,
		handler:    handler,
		listenPort: portOf(listener.Addr()),
	}

	if lc.AcceptRate > 0 {
		limiter, err := limit.NewAcceptLimiter(lc.AcceptRate, lc.AcceptBurst)
		if err != nil {
			return nil, fmt.Errorf("listener %s: %w", lc.Name, err)
		}
		al.limiter = limiter
	}
	return al, nil
}

// OnAccept runs on the accept goroutine, the session is created on the
// event loop.
func (al *activeListener) OnAccept(rawc net.Conn) {
	stats := al.handler.srv.stats
	if al.limiter != nil && !al.limiter.AllowConn(rawc.RemoteAddr()) {
		stats.ConnectionsRejected.Inc(1)
		log.DefaultLogger.Debugf("listener %s: connection from %s over the accept rate", al.listener.Name(), rawc.RemoteAddr())
		rawc.Close()
		return
	}
	stats.ConnectionsAccepted.Inc(1)

	if !al.handler.srv.loop.Post(func() { al.handler.newSession(rawc, al) }) {
		rawc.Close()
	}
}

func (al *activeListener) OnClose() {
	log.DefaultLogger.Debugf("listener %s closed", al.listener.Name())
}
