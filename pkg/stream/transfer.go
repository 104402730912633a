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

// Package stream pumps a response body from a source to a connection
// through one bounded buffer with a single write in flight.
package stream

import (
	"io"

	"kiln/pkg/buffer"
	"kiln/pkg/evio"
	"kiln/pkg/log"
)

// Transfer moves bytes from a Source to a Sink. Every method must be called
// on the event loop goroutine.
type Transfer struct {
	src   Source
	sink  Sink
	sched evio.Scheduler
	buf   *buffer.TransferBuffer

	readInFlight  bool
	writeInFlight bool
	eof           bool
	stalled       bool
	released      bool

	written   int64
	onRelease func(reason ReleaseReason)
}

// NewTransfer creates a transfer with a buffer of size bytes, the default
// 1MiB when size <= 0. onRelease fires exactly once, when the source is
// released.
func NewTransfer(src Source, sink Sink, sched evio.Scheduler, size int, onRelease func(reason ReleaseReason)) *Transfer {
	return &Transfer{
		src:       src,
		sink:      sink,
		sched:     sched,
		buf:       buffer.NewTransferBuffer(size),
		onRelease: onRelease,
	}
}

// Start issues the first read.
func (t *Transfer) Start() {
	t.readMore()
}

// Written returns the number of bytes the sink accepted so far.
func (t *Transfer) Written() int64 {
	return t.written
}

// Buffered returns the number of bytes read but not yet written.
func (t *Transfer) Buffered() int {
	if t.released {
		return 0
	}
	return t.buf.Len()
}

// Released reports whether the source was released.
func (t *Transfer) Released() bool {
	return t.released
}

// Cancel releases the transfer on behalf of its owner.
func (t *Transfer) Cancel() {
	t.release(LocalCancel)
}

// OnSinkClosed releases the source when the sink went away.
func (t *Transfer) OnSinkClosed() {
	t.release(SinkLost)
}

func (t *Transfer) readMore() {
	if t.released || t.readInFlight || !t.buf.Empty() {
		return
	}
	t.buf.Reset()
	t.readInFlight = true
	t.src.Read(t.buf.Free(), t.onRead)
}

func (t *Transfer) onRead(n int, err error) {
	t.readInFlight = false
	if t.released {
		return
	}
	if n > 0 {
		t.buf.Advance(n)
	}
	switch {
	case err == io.EOF:
		t.eof = true
	case err != nil:
		log.DefaultLogger.Errorf("transfer: read from body source failed: %v", err)
		t.stalled = true
	}

	if t.buf.Empty() {
		t.drained()
		return
	}
	t.writeMore()
}

func (t *Transfer) writeMore() {
	if t.released || t.writeInFlight || t.buf.Empty() {
		return
	}
	t.writeInFlight = true
	if err := t.sink.WriteAsync(t.buf.Unread(), t.onWrite); err != nil {
		t.writeInFlight = false
		log.DefaultLogger.Debugf("transfer: sink refused write: %v", err)
		t.release(SinkLost)
	}
}

func (t *Transfer) onWrite(n int, err error) {
	t.writeInFlight = false
	if t.released {
		return
	}
	if n > 0 {
		t.buf.Consume(n)
		t.written += int64(n)
	}
	if err != nil {
		log.DefaultLogger.Debugf("transfer: write to sink failed: %v", err)
		t.release(SinkLost)
		return
	}

	if !t.buf.Empty() {
		t.writeMore()
		return
	}
	t.drained()
}

// drained decides what follows an empty buffer.
func (t *Transfer) drained() {
	switch {
	case t.eof:
		t.release(SourceExhausted)
	case t.stalled:
		// nothing more will come, wait to be destroyed
	default:
		t.sched.Defer(t.readMore)
	}
}

func (t *Transfer) release(reason ReleaseReason) {
	if t.released {
		return
	}
	t.released = true

	if err := t.src.Close(); err != nil {
		log.DefaultLogger.Debugf("transfer: close body source: %v", err)
	}
	// a pending read or write still references the memory, leave it to GC
	if !t.readInFlight && !t.writeInFlight {
		t.buf.Release()
	}

	if fn := t.onRelease; fn != nil {
		t.onRelease = nil
		fn(reason)
	}
}
