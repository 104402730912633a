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
	"runtime/debug"
	"time"

	"kiln/pkg/evio"
	"kiln/pkg/log"
	"kiln/pkg/network"
	"kiln/pkg/protocol/http/v1"
	"kiln/pkg/types"
)

// session serves the requests of one connection. It is the read filter and
// the event listener of the connection, and runs on the event loop only.
//
// The read is held while a response is in progress so requests are
// answered one at a time, in order. Bytes of pipelined requests wait in
// the input stream.
type session struct {
	ctx  context.Context
	srv  *Server
	conn network.Connection
	cb   network.ReadFilterCallbacks

	assembler *v1.Assembler
	in        evio.InputStream

	resp    *v1.Response
	started time.Time

	// waiting is set when the read is held for a response in progress
	waiting bool
	// closing closes the connection once the current response is done
	closing bool
	ended   bool
}

func newSession(ctx context.Context, srv *Server, conn network.Connection) *session {
	s := &session{
		ctx:       ctx,
		srv:       srv,
		conn:      conn,
		assembler: v1.NewAssembler(srv.config.MaxHeaderBytes, srv.config.MaxBodyBytes),
	}
	s.assembler.Request().RemoteAddr = conn.RemoteAddr()
	return s
}

func (s *session) OnNewConnection() network.FilterStatus {
	log.DefaultLogger.Debugf("listener %s: new connection %d from %s",
		types.ListenerName(s.ctx), s.conn.ID(), s.conn.RemoteAddr())
	return network.Continue
}

func (s *session) InitializeReadFilterCallbacks(cb network.ReadFilterCallbacks) {
	s.cb = cb
}

func (s *session) OnData(buffer []byte) network.FilterStatus {
	return s.process(s.in.Begin(buffer))
}

// process feeds data to the assembler until it is consumed, a response is
// in progress, or the connection went away.
func (s *session) process(data []byte) network.FilterStatus {
	for {
		if s.ended || s.conn.IsClosed() {
			return network.Stop
		}
		if s.resp != nil {
			s.in.End(data)
			s.waiting = true
			return network.Stop
		}
		if len(data) == 0 {
			s.in.End(nil)
			return network.Continue
		}

		n, ev, err := s.assembler.Feed(data)
		data = data[n:]

		switch ev {
		case v1.EventPartial:
			s.in.End(nil)
			return network.Continue

		case v1.EventMessageComplete:
			s.dispatch(s.assembler.Request())

		case v1.EventUpgradeRequested:
			s.in.Reset()
			s.srv.upgrades.dispatch(s, s.assembler.Request(), data)
			return network.Stop

		case v1.EventError:
			s.srv.stats.ParseErrors.Inc(1)
			log.DefaultLogger.Debugf("connection %d: bad request from %s: %v", s.conn.ID(), s.conn.RemoteAddr(), err)
			s.in.Reset()
			// answers already queued for earlier requests still go out
			s.conn.Close(network.FlushWrite, network.LocalClose)
			return network.Stop
		}
	}
}

// dispatch hands a complete request to the handlers
func (s *session) dispatch(req *v1.Request) {
	s.srv.stats.Requests.Mark(1)
	s.started = time.Now()

	resp := v1.NewResponse(s.conn, v1.ResponseOptions{
		Scheduler:    s.srv.loop,
		Workers:      s.srv.workers,
		TransferSize: s.srv.config.TransferBufferSize,
	}, s.onResponseDone)
	if req.Major == 1 && req.Minor == 0 {
		resp.Minor = 0
		resp.KeepAlive = req.KeepAlive()
	}
	s.resp = resp

	defer func() {
		if p := recover(); p != nil {
			s.srv.stats.HandlerPanics.Inc(1)
			log.DefaultLogger.Errorf("connection %d: handler of %s %s panicked: %v\n%s",
				s.conn.ID(), req.Method, req.Target, p, debug.Stack())
			resp.Cancel()
			s.conn.Close(network.NoFlush, network.LocalClose)
		}
	}()

	handlers, missing := s.srv.requestHandlers()
	for _, h := range handlers {
		if h.ServeHTTP(req, resp) {
			return
		}
	}
	missing(req, resp)
}

// onResponseDone runs once the response was handed to the connection,
// either within dispatch or later from the event loop.
func (s *session) onResponseDone(resp *v1.Response) {
	if resp != s.resp {
		return
	}
	s.resp = nil
	s.srv.stats.ResponseTime.UpdateSince(s.started)

	req := s.assembler.Request()
	log.DefaultLogger.Debugf("connection %d: %s %s %d", s.conn.ID(), req.Method, req.Target, resp.Status())

	if resp.CloseConnection() || !req.KeepAlive() || s.closing {
		s.conn.Close(network.FlushWrite, network.LocalClose)
		return
	}

	if s.waiting {
		s.waiting = false
		if s.process(s.in.Begin(nil)) == network.Continue {
			s.cb.ContinueReading()
		}
	}
}

// drain closes the connection once it is idle
func (s *session) drain() {
	s.closing = true
	if s.resp == nil && s.in.Len() == 0 && s.assembler.Request().State() != v1.StateInProgress {
		s.conn.Close(network.FlushWrite, network.LocalClose)
	}
}

// detached ends the session after an upgrade handed the socket over
func (s *session) detached() {
	s.end()
}

func (s *session) end() {
	if s.ended {
		return
	}
	s.ended = true
	s.srv.handler.removeSession(s)
}

// OnEvent tears the response and its transfer down with the connection
func (s *session) OnEvent(event network.ConnectionEvent) {
	if !event.IsClose() {
		return
	}
	if s.resp != nil {
		resp := s.resp
		s.resp = nil
		resp.OnConnectionClosed()
	}
	s.in.Reset()
	s.end()
}
