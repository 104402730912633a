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

// Package evio implements the single event loop which owns every piece of
// connection state. Helper goroutines performing blocking socket or file
// I/O never touch that state, they Post their results to the loop.
package evio

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"kiln/pkg/evio/internal"
	"kiln/pkg/log"
)

var ErrLoopRunning = errors.New("event loop is already running")

// Scheduler is the part of the loop visible to event handlers.
type Scheduler interface {
	// Post enqueues fn to run on the loop goroutine. It is safe to call from
	// any goroutine and never blocks. It returns false once the loop stopped.
	Post(fn func()) bool

	// Defer runs fn on the loop after the current batch of events, without
	// growing the call stack. It must only be called from the loop goroutine.
	Defer(fn func())

	// Done is closed when the loop is asked to stop.
	Done() <-chan struct{}
}

// Loop is a single goroutine reactor.
type Loop struct {
	queue    internal.NoteQueue
	wake     chan struct{}
	deferred []func()

	running  int32
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}

	// PanicHandler is called with the recovered value when an event panics.
	PanicHandler func(interface{})
}

func NewLoop() *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stop:
		return false
	default:
	}
	if l.queue.Add(fn) {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	return true
}

func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// AfterFunc posts fn to the loop once d elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

func (l *Loop) Done() <-chan struct{} {
	return l.stop
}

// Exited is closed once Run returned.
func (l *Loop) Exited() <-chan struct{} {
	return l.exited
}

// Stop asks the loop to exit after the current batch. Pending events are
// dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}

// Run processes events until Stop is called.
func (l *Loop) Run() error {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return ErrLoopRunning
	}
	defer close(l.exited)

	for {
		select {
		case <-l.stop:
			return nil
		default:
		}

		l.queue.ForEach(l.exec)

		if len(l.deferred) > 0 {
			batch := l.deferred
			l.deferred = nil
			for _, fn := range batch {
				l.exec(fn)
			}
		}

		if len(l.deferred) > 0 || l.queue.Len() > 0 {
			continue
		}

		select {
		case <-l.stop:
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			if l.PanicHandler != nil {
				l.PanicHandler(p)
			} else {
				log.DefaultLogger.Errorf("event loop recovered from panic: %v\n%s", p, debug.Stack())
			}
		}
	}()
	fn()
}
