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

package buffer

import "errors"

// DefaultTransferSize is the transfer buffer capacity, 1MiB
const DefaultTransferSize = 1 << 20

var ErrReleased = errors.New("transfer buffer released")

// TransferBuffer is a fixed capacity buffer with a read and a write cursor.
// 0 <= readCursor <= writeCursor <= capacity always holds.
//
// TransferBuffer instance MUST NOT be used from concurrently running goroutines.
type TransferBuffer struct {
	bp  *[]byte
	buf []byte

	readCursor  int
	writeCursor int
}

// NewTransferBuffer takes a buffer of the given capacity from the pool.
func NewTransferBuffer(capacity int) *TransferBuffer {
	if capacity <= 0 {
		capacity = DefaultTransferSize
	}
	bp := GetBytes(capacity)
	return &TransferBuffer{
		bp:  bp,
		buf: (*bp)[:capacity],
	}
}

// Cap returns the buffer capacity, 0 once released
func (b *TransferBuffer) Cap() int {
	return len(b.buf)
}

// Len returns the amount of unread bytes
func (b *TransferBuffer) Len() int {
	return b.writeCursor - b.readCursor
}

func (b *TransferBuffer) Empty() bool {
	return b.readCursor == b.writeCursor
}

// Unread returns the bytes between the read and the write cursor.
// The slice aliases the buffer and stays valid until Reset or Release.
func (b *TransferBuffer) Unread() []byte {
	return b.buf[b.readCursor:b.writeCursor]
}

// Free returns the writable region after the write cursor
func (b *TransferBuffer) Free() []byte {
	return b.buf[b.writeCursor:]
}

// Advance moves the write cursor after n bytes were stored into Free()
func (b *TransferBuffer) Advance(n int) {
	if n < 0 || b.writeCursor+n > len(b.buf) {
		panic("BUG: transfer buffer write cursor beyond capacity")
	}
	b.writeCursor += n
}

// Consume moves the read cursor after n bytes of Unread() were written out
func (b *TransferBuffer) Consume(n int) {
	if n < 0 || b.readCursor+n > b.writeCursor {
		panic("BUG: transfer buffer read cursor beyond write cursor")
	}
	b.readCursor += n
}

// Reset rewinds both cursors, the buffer must be empty
func (b *TransferBuffer) Reset() {
	b.readCursor = 0
	b.writeCursor = 0
}

// Release gives the memory back to the pool, releasing twice is an error
func (b *TransferBuffer) Release() error {
	if b.bp == nil {
		return ErrReleased
	}
	PutBytes(b.bp)
	b.bp = nil
	b.buf = nil
	b.readCursor = 0
	b.writeCursor = 0
	return nil
}
