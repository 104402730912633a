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
	"errors"
	"net"
	"time"

	"kiln/pkg/log"
	"kiln/pkg/protocol/http/v1"
)

const (
	DefaultGracefulTimeout = 30 * time.Second
	DefaultIOWorkers       = 64
)

var (
	ErrServing      = errors.New("server is already serving")
	ErrServerClosed = errors.New("server closed")
	ErrNoAddress    = errors.New("listener has no address")
)

type Config struct {
	ServerName      string
	LogPath         string
	LogLevel        log.Level
	GracefulTimeout time.Duration

	// zero values select the package defaults
	ReadBufferSize     int
	TransferBufferSize int
	MaxHeaderBytes     int
	MaxBodyBytes       int64
	IOWorkers          int
}

// RequestHandler answers requests. ServeHTTP returns false when it does not
// claim req, the next handler is asked then. A handler claiming a request
// must complete resp, possibly later from the event loop.
type RequestHandler interface {
	ServeHTTP(req *v1.Request, resp *v1.Response) bool
}

// RequestHandlerFunc adapts a function to RequestHandler
type RequestHandlerFunc func(req *v1.Request, resp *v1.Response) bool

func (f RequestHandlerFunc) ServeHTTP(req *v1.Request, resp *v1.Response) bool {
	return f(req, resp)
}

// MissingHandler answers requests no RequestHandler claimed
type MissingHandler func(req *v1.Request, resp *v1.Response)

// UpgradeHandler takes over a connection which asked for a protocol
// upgrade. It runs on its own goroutine and owns conn, whose first reads
// return the bytes received after the request header block. conn is closed
// once ServeUpgrade returns.
type UpgradeHandler interface {
	ServeUpgrade(req *v1.Request, conn net.Conn)
}

// UpgradeHandlerFunc adapts a function to UpgradeHandler
type UpgradeHandlerFunc func(req *v1.Request, conn net.Conn)

func (f UpgradeHandlerFunc) ServeUpgrade(req *v1.Request, conn net.Conn) {
	f(req, conn)
}

func defaultMissingHandler(req *v1.Request, resp *v1.Response) {
	resp.WriteStatus(v1.StatusNotFound)
}
