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
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"kiln/pkg/buffer"
	"kiln/pkg/evio"
	"kiln/pkg/log"
)

const (
	DefaultBufferReadCapacity = 1 << 16
	DefaultFlushTimeout       = 10 * time.Second
)

var globalSessionId uint64 = 0

type writerState int

const (
	writerRunning writerState = iota
	writerClosing
	writerDetaching
	writerAborted
)

type writeReq struct {
	p    []byte
	done func(n int, err error)
}

// connection runs one reader and one writer goroutine around a net.Conn.
// Both only talk to the rest of the program by posting to the event loop.
type connection struct {
	id         uint64
	rawc       net.Conn
	sched      evio.Scheduler
	remoteAddr net.Addr
	localAddr  net.Addr

	readBufferSize int
	flushTimeout   time.Duration
	stats          *ConnectionStats

	closeFlag int32

	// owned by the event loop
	state         ConnState
	filterManager *filterManager
	listeners     []ConnectionEventListener
	readBuffer    []byte
	readHeld      bool
	started       bool

	resume chan bool

	writeMu     sync.Mutex
	writeCond   *sync.Cond
	writeQ      []writeReq
	writer      writerState
	writerDone  chan struct{}
	writerStart sync.Once
}

// NewServerConnection wraps an accepted socket. readBufferSize <= 0 selects
// DefaultBufferReadCapacity.
func NewServerConnection(rawc net.Conn, sched evio.Scheduler, readBufferSize int) Connection {
	return newConnection(rawc, sched, readBufferSize)
}

func newConnection(rawc net.Conn, sched evio.Scheduler, readBufferSize int) *connection {
	if readBufferSize <= 0 {
		readBufferSize = DefaultBufferReadCapacity
	}
	c := &connection{
		id:             atomic.AddUint64(&globalSessionId, 1),
		rawc:           rawc,
		sched:          sched,
		remoteAddr:     rawc.RemoteAddr(),
		localAddr:      rawc.LocalAddr(),
		readBufferSize: readBufferSize,
		flushTimeout:   DefaultFlushTimeout,
		stats:          NewConnectionStats(),
		state:          Open,
		resume:         make(chan bool, 1),
		writerDone:     make(chan struct{}),
	}
	c.writeCond = sync.NewCond(&c.writeMu)
	c.filterManager = newFilterManager(c)
	return c
}

func (c *connection) ID() uint64 {
	return c.id
}

func (c *connection) Start(ctx context.Context) {
	if c.started || c.IsClosed() {
		return
	}
	c.started = true
	c.filterManager.InitializeReadFilters()
	c.startWriter()
	go c.startReadLoop()
}

func (c *connection) startWriter() {
	c.writerStart.Do(func() {
		go c.startWriteLoop()
	})
}

func (c *connection) Write(b []byte) error {
	p := make([]byte, len(b))
	copy(p, b)
	return c.enqueue(writeReq{p: p})
}

func (c *connection) WriteAsync(p []byte, done func(n int, err error)) error {
	return c.enqueue(writeReq{p: p, done: done})
}

func (c *connection) enqueue(req writeReq) error {
	if c.IsClosed() {
		log.DefaultLogger.Warnf("connection %d: write of %d bytes after close ignored", c.id, len(req.p))
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	c.writeQ = append(c.writeQ, req)
	c.writeMu.Unlock()
	c.writeCond.Signal()
	return nil
}

func (c *connection) Close(ccType ConnectionCloseType, eventType ConnectionEvent) error {
	if !atomic.CompareAndSwapInt32(&c.closeFlag, 0, 1) {
		return nil
	}

	flush := ccType == FlushWrite && c.started
	c.writeMu.Lock()
	if flush {
		c.state = Closing
		c.writer = writerClosing
		c.rawc.SetWriteDeadline(time.Now().Add(c.flushTimeout))
	} else {
		c.state = Closed
		c.writer = writerAborted
		c.writeQ = nil
	}
	c.writeMu.Unlock()
	c.writeCond.Broadcast()

	if !flush {
		c.rawc.Close()
	} else {
		// unblock the reader, the writer closes the socket once flushed
		c.rawc.SetReadDeadline(time.Now())
	}
	c.stopReading()

	log.DefaultLogger.Debugf("connection %d closed: %s %s", c.id, ccType, eventType)
	for _, cb := range c.listeners {
		cb.OnEvent(eventType)
	}
	return nil
}

func (c *connection) Detach(rollback []byte) (net.Conn, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	if !c.readHeld {
		return nil, ErrReadNotPaused
	}
	atomic.StoreInt32(&c.closeFlag, 1)
	c.state = Detached
	c.stopReading()

	c.writeMu.Lock()
	c.writer = writerDetaching
	c.writeMu.Unlock()
	c.writeCond.Broadcast()
	c.startWriter()

	pc := &prefixConn{
		Conn:    c.rawc,
		flushed: c.writerDone,
	}
	if len(rollback) > 0 {
		pc.prefix = append([]byte(nil), rollback...)
	}
	return pc, nil
}

func (c *connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closeFlag) == 1
}

func (c *connection) State() ConnState {
	return c.state
}

func (c *connection) LocalAddr() net.Addr {
	return c.localAddr
}

func (c *connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

func (c *connection) SetRemoteAddr(addr net.Addr) {
	c.remoteAddr = addr
}

func (c *connection) AddConnectionEventListener(cb ConnectionEventListener) {
	c.listeners = append(c.listeners, cb)
}

func (c *connection) GetReadBuffer() []byte {
	return c.readBuffer
}

func (c *connection) FilterManager() FilterManager {
	return c.filterManager
}

func (c *connection) RawConn() net.Conn {
	return c.rawc
}

func (c *connection) SetStats(stats *ConnectionStats) {
	if stats != nil {
		c.stats = stats
	}
}

// onRead delivers a chunk to the filters, the reader waits until the read
// is released.
func (c *connection) onRead(data []byte) {
	if c.IsClosed() {
		select {
		case c.resume <- false:
		default:
		}
		return
	}
	c.readBuffer = data
	c.readHeld = true
	c.filterManager.OnRead()
}

func (c *connection) releaseRead() {
	if !c.readHeld || c.IsClosed() {
		return
	}
	c.readHeld = false
	c.readBuffer = nil
	c.resume <- true
}

func (c *connection) stopReading() {
	c.readBuffer = nil
	if c.readHeld {
		c.readHeld = false
		c.resume <- false
	}
}

func (c *connection) startReadLoop() {
	bp := buffer.GetBytes(c.readBufferSize)
	defer buffer.PutBytes(bp)
	buf := (*bp)[:c.readBufferSize]

	for {
		n, err := c.rawc.Read(buf)
		if n > 0 {
			c.stats.ReadTotal.Inc(int64(n))
			data := buf[:n]
			if !c.sched.Post(func() { c.onRead(data) }) {
				return
			}
			if ok := <-c.resume; !ok {
				return
			}
		}
		if err != nil {
			if c.IsClosed() {
				return
			}
			event := OnReadErrClose
			if err == io.EOF {
				event = RemoteClose
			} else {
				log.DefaultLogger.Debugf("connection %d read error: %v", c.id, err)
			}
			c.sched.Post(func() { c.Close(NoFlush, event) })
			return
		}
	}
}

func (c *connection) startWriteLoop() {
	defer close(c.writerDone)

	for {
		c.writeMu.Lock()
		for len(c.writeQ) == 0 && c.writer == writerRunning {
			c.writeCond.Wait()
		}
		reqs, state := c.writeQ, c.writer
		c.writeQ = nil
		c.writeMu.Unlock()

		if state == writerAborted {
			return
		}
		if len(reqs) == 0 {
			if state == writerClosing {
				c.rawc.Close()
			}
			return
		}

		for _, req := range reqs {
			n, err := c.rawc.Write(req.p)
			if n > 0 {
				c.stats.WriteTotal.Inc(int64(n))
			}
			if req.done != nil {
				done := req.done
				c.sched.Post(func() {
					if !c.IsClosed() {
						done(n, err)
					}
				})
			}
			if err != nil {
				c.onWriteError(err)
				return
			}
		}
	}
}

func (c *connection) onWriteError(err error) {
	c.writeMu.Lock()
	state := c.writer
	c.writeQ = nil
	c.writeMu.Unlock()

	if state == writerAborted {
		return
	}
	if !errors.Is(err, net.ErrClosed) {
		log.DefaultLogger.Debugf("connection %d write error: %v", c.id, err)
	}
	c.rawc.Close()
	c.sched.Post(func() { c.Close(NoFlush, OnWriteErrClose) })
}
