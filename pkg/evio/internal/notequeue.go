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

package internal

import (
	"runtime"
	"sync/atomic"
)

// this is a good candiate for a lock-free structure.

type Spinlock struct{ lock uintptr }

func (l *Spinlock) Lock() {
	for !atomic.CompareAndSwapUintptr(&l.lock, 0, 1) {
		runtime.Gosched()
	}
}
func (l *Spinlock) Unlock() {
	atomic.StoreUintptr(&l.lock, 0)
}

// NoteQueue is an unbounded multi-producer queue drained by one consumer.
type NoteQueue struct {
	mu    Spinlock
	notes []func()
	n     int64
}

// Add appends a note and reports whether the queue was empty, in which
// case the consumer must be woken up.
func (q *NoteQueue) Add(note func()) (one bool) {
	q.mu.Lock()
	n := atomic.AddInt64(&q.n, 1)
	q.notes = append(q.notes, note)
	q.mu.Unlock()
	return n == 1
}

// Len returns the number of pending notes
func (q *NoteQueue) Len() int {
	return int(atomic.LoadInt64(&q.n))
}

// ForEach takes every pending note and runs iter on them in order.
// Notes added while iterating are kept for the next call.
func (q *NoteQueue) ForEach(iter func(note func())) {
	if atomic.LoadInt64(&q.n) == 0 {
		return
	}
	q.mu.Lock()
	if len(q.notes) == 0 {
		q.mu.Unlock()
		return
	}
	notes := q.notes
	atomic.StoreInt64(&q.n, 0)
	q.notes = nil
	q.mu.Unlock()
	for _, note := range notes {
		iter(note)
	}
}
