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

package network

import (
	"context"
	"errors"
	"net"

	"github.com/rcrowley/go-metrics"

	"kiln/pkg/api/v2"
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrReadNotPaused    = errors.New("connection can only be detached while a read is held")
)

// Listener is a wrapper of tcp listener
type Listener interface {
	// Return config which initialize this listener
	Config() *v2.Listener

	// Name returns the listener's name
	Name() string

	// Addr returns the listener's network address, the bound one once
	// listening.
	Addr() net.Addr

	// Listen binds the listening socket, adopted listeners skip it
	Listen() error

	// Start runs the accept loop until the listener is stopped or closed
	Start(lctx context.Context)

	// Stop stops listener
	// Accepted connections and listening sockets will not be closed
	Stop() error

	// ListenerTag returns the listener's tag, which the listener should use for connection handler tracking.
	ListenerTag() uint64

	// Set listener tag
	SetListenerTag(tag uint64)

	// RawListener returns the listening socket, nil before Listen
	RawListener() net.Listener

	// SetListenerCallbacks set a listener event listener
	SetListenerCallbacks(cb ListenerEventListener)

	// GetListenerCallbacks set a listener event listener
	GetListenerCallbacks() ListenerEventListener

	// Close closes listener, not closing connections
	Close(lctx context.Context) error
}

// ListenerEventListener is a Callback invoked by a listener.
type ListenerEventListener interface {
	// OnAccept is called on listener accepted new connection, on the
	// accept goroutine
	OnAccept(rawc net.Conn)

	// OnClose is called on listener closed
	OnClose()
}

// ConnectionEventListener is a network level callbacks that happen on a connection.
type ConnectionEventListener interface {
	// OnEvent is called on ConnectionEvent
	OnEvent(event ConnectionEvent)
}

// Connection status
type ConnState string

// Connection statuses
const (
	Open     ConnState = "Open"
	Closing  ConnState = "Closing"
	Closed   ConnState = "Closed"
	Detached ConnState = "Detached"
)

// ConnectionCloseType represent connection close type
type ConnectionCloseType string

// Connection close types
const (
	// FlushWrite means write buffer to underlying io then close connection
	FlushWrite ConnectionCloseType = "FlushWrite"
	// NoFlush means close connection without flushing buffer
	NoFlush ConnectionCloseType = "NoFlush"
)

// ConnectionEvent type
type ConnectionEvent string

// ConnectionEvent types
const (
	RemoteClose     ConnectionEvent = "RemoteClose"
	LocalClose      ConnectionEvent = "LocalClose"
	OnReadErrClose  ConnectionEvent = "OnReadErrClose"
	OnWriteErrClose ConnectionEvent = "OnWriteErrClose"
)

// IsClose reports whether the event closed the connection
func (ce ConnectionEvent) IsClose() bool {
	return ce == LocalClose || ce == RemoteClose ||
		ce == OnReadErrClose || ce == OnWriteErrClose
}

// Connection interface. Apart from ID, IsClosed and the address getters,
// every method must be called on the event loop goroutine.
type Connection interface {
	// ID returns unique connection id
	ID() uint64

	// Start starts the read and write goroutines of the connection.
	Start(ctx context.Context)

	// Write queues a copy of b.
	Write(b []byte) error

	// WriteAsync queues p without copying it, done runs on the event loop
	// once p was written or failed.
	WriteAsync(p []byte, done func(n int, err error)) error

	// Close closes connection with connection type and event type.
	// ConnectionCloseType - how to close to connection
	// 	- FlushWrite: connection will be closed after buffer flushed to underlying io
	//	- NoFlush: close connection asap
	// ConnectionEvent - why to close the connection
	// 	- RemoteClose
	//  - LocalClose
	// 	- OnReadErrClose
	//  - OnWriteErrClose
	Close(ccType ConnectionCloseType, eventType ConnectionEvent) error

	// IsClosed reports whether the connection was closed or detached.
	IsClosed() bool

	// State returns the connection state
	State() ConnState

	// LocalAddr returns the local address of the connection.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote address of the connection.
	RemoteAddr() net.Addr

	// SetRemoteAddr is used for originaldst we need to replace remoteAddr
	SetRemoteAddr(address net.Addr)

	// AddConnectionEventListener add a listener method will be called when connection event occur.
	AddConnectionEventListener(cb ConnectionEventListener)

	// GetReadBuffer returns the chunk being delivered to the read filters
	GetReadBuffer() []byte

	// FilterManager returns the FilterManager
	FilterManager() FilterManager

	// Detach hands the socket over. It is only allowed while a read is held
	// by a read filter. Reads of the returned conn yield rollback first,
	// writes wait until every queued write was flushed.
	Detach(rollback []byte) (net.Conn, error)

	// RawConn returns the original connections.
	RawConn() net.Conn

	// SetStats sets the counters updated by the connection
	SetStats(stats *ConnectionStats)
}

// ConnectionStats is a group of connection metrics
type ConnectionStats struct {
	ReadTotal  metrics.Counter
	WriteTotal metrics.Counter
}

// NewConnectionStats creates unregistered counters
func NewConnectionStats() *ConnectionStats {
	return &ConnectionStats{
		ReadTotal:  metrics.NewCounter(),
		WriteTotal: metrics.NewCounter(),
	}
}

// ReadFilterCallbacks is called by read filter to talk to connection
type ReadFilterCallbacks interface {
	// Connection returns the connection triggered the callback
	Connection() Connection

	// ContinueReading filter iteration on filter stopped, next filter will be called with current read buffer
	ContinueReading()
}

// FilterManager is a groups of filters
type FilterManager interface {
	// AddReadFilter adds a read filter
	AddReadFilter(rf ReadFilter)

	// ListReadFilter returns the list of read filters
	ListReadFilter() []ReadFilter

	// InitializeReadFilters initialize read filters
	InitializeReadFilters() bool

	// OnRead is called on data read
	OnRead()
}

// ReadFilter is a connection binary read filter, registered by FilterManager.AddReadFilter
type ReadFilter interface {
	// OnData is called everytime bytes is read from the connection. The
	// buffer is reused once the read is released: a filter returning
	// Continue must not keep it, a filter returning Stop holds the read
	// until it calls ContinueReading.
	OnData(buffer []byte) FilterStatus

	// OnNewConnection is called on new connection is created
	OnNewConnection() FilterStatus

	// InitializeReadFilterCallbacks initials read filter callbacks. It used by init read filter
	InitializeReadFilterCallbacks(cb ReadFilterCallbacks)
}

// FilterStatus type
type FilterStatus string

// FilterStatus types
const (
	Continue FilterStatus = "Continue"
	Stop     FilterStatus = "Stop"
)
