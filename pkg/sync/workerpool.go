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

package sync

import (
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"kiln/pkg/log"
)

const (
	DEFAULT_CONCURRENCY         = 64
	DEFAULT_PURGE_INTERVAL_TIME = 1
	CLOSED                      = 1
)

// ErrPoolClosed will be returned when submitting task to a closed pool.
var ErrPoolClosed = errors.New("this pool has been closed")

// WorkerPool runs blocking tasks, such as body source reads, away from the
// event loop. Serve never blocks: tasks beyond the capacity wait in a FIFO
// backlog.
type WorkerPool interface {
	// Serve submits a task
	Serve(task func()) error

	// Running reports the number of live workers
	Running() int

	// Free reports how many more workers may be spawned
	Free() int

	// Cap reports the worker capacity
	Cap() int

	// Pending reports the number of queued tasks
	Pending() int

	// Release stops idle workers and refuses new tasks
	Release() error
}

type workerPool struct {
	capacity int32
	running  int32
	release  int32

	expiryDuration time.Duration

	lock    sync.Mutex
	once    sync.Once
	workers []*worker
	backlog []func()

	PanicHandler func(interface{})
}

// NewWorkerPool create a worker pool
func NewWorkerPool(size, expiry int) WorkerPool {
	return newWorkerPool(size, expiry)
}

func newWorkerPool(size, expiry int) *workerPool {
	if size <= 0 {
		size = DEFAULT_CONCURRENCY
	}
	if expiry <= 0 {
		expiry = DEFAULT_PURGE_INTERVAL_TIME
	}
	wp := &workerPool{
		capacity:       int32(size),
		expiryDuration: time.Duration(expiry) * time.Second,
	}
	go wp.periodicallyPurge()
	return wp
}

func (wp *workerPool) periodicallyPurge() {
	heartbeat := time.NewTicker(wp.expiryDuration)
	defer heartbeat.Stop()

	for range heartbeat.C {
		if CLOSED == atomic.LoadInt32(&wp.release) {
			break
		}
		currentTime := time.Now()
		wp.lock.Lock()
		idleWorkers := wp.workers
		n := -1
		for i, w := range idleWorkers {
			if currentTime.Sub(w.recycleTime) <= wp.expiryDuration {
				break
			}
			n = i
			w.task <- nil
			idleWorkers[i] = nil
		}
		if n > -1 {
			wp.workers = idleWorkers[n+1:]
		}
		wp.lock.Unlock()
	}
}

func (wp *workerPool) Serve(t func()) error {
	if CLOSED == atomic.LoadInt32(&wp.release) {
		return ErrPoolClosed
	}

	wp.lock.Lock()
	if n := len(wp.workers) - 1; n >= 0 {
		w := wp.workers[n]
		wp.workers[n] = nil
		wp.workers = wp.workers[:n]
		wp.lock.Unlock()
		w.task <- t
		return nil
	}
	if wp.Running() < wp.Cap() {
		wp.incRunning()
		wp.lock.Unlock()
		w := &worker{
			pool: wp,
			task: make(chan func(), 1),
		}
		w.run()
		w.task <- t
		return nil
	}
	wp.backlog = append(wp.backlog, t)
	wp.lock.Unlock()
	return nil
}

func (wp *workerPool) Running() int {
	return int(atomic.LoadInt32(&wp.running))
}

func (wp *workerPool) Free() int {
	return int(atomic.LoadInt32(&wp.capacity) - atomic.LoadInt32(&wp.running))
}

func (wp *workerPool) Cap() int {
	return int(atomic.LoadInt32(&wp.capacity))
}

func (wp *workerPool) Pending() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return len(wp.backlog)
}

func (wp *workerPool) Release() error {
	wp.once.Do(func() {
		atomic.StoreInt32(&wp.release, CLOSED)
		wp.lock.Lock()
		for i, w := range wp.workers {
			w.task <- nil
			wp.workers[i] = nil
		}
		wp.workers = nil
		wp.backlog = nil
		wp.lock.Unlock()
	})
	return nil
}

// next hands the worker the oldest queued task, or parks it as idle
func (wp *workerPool) next(w *worker) func() {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if CLOSED == atomic.LoadInt32(&wp.release) {
		return nil
	}
	if len(wp.backlog) > 0 {
		t := wp.backlog[0]
		wp.backlog[0] = nil
		wp.backlog = wp.backlog[1:]
		return t
	}
	w.recycleTime = time.Now()
	wp.workers = append(wp.workers, w)
	return nil
}

func (wp *workerPool) incRunning() {
	atomic.AddInt32(&wp.running, 1)
}

func (wp *workerPool) decRunning() {
	atomic.AddInt32(&wp.running, -1)
}

type worker struct {
	pool        *workerPool
	task        chan func()
	recycleTime time.Time
}

func (w *worker) run() {
	go func() {
		defer w.pool.decRunning()

		for f := range w.task {
			if f == nil {
				return
			}
			for f != nil {
				w.exec(f)
				f = w.pool.next(w)
			}
			if CLOSED == atomic.LoadInt32(&w.pool.release) {
				return
			}
		}
	}()
}

func (w *worker) exec(f func()) {
	defer func() {
		if p := recover(); p != nil {
			if w.pool.PanicHandler != nil {
				w.pool.PanicHandler(p)
			} else {
				log.DefaultLogger.Errorf("worker exits from a panic: %v\n%s", p, debug.Stack())
			}
		}
	}()
	f()
}
