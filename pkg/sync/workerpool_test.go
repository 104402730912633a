/*
 * Copyright (c) 2019. LuCongyao <6congyao@gmail.com> .
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
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	Size = 16
	n    = 2000
)

func demoFunc() {
	time.Sleep(time.Millisecond)
}

func TestWorkerPoolBacklog(t *testing.T) {
	var wg sync.WaitGroup
	p := NewWorkerPool(Size, 0)
	defer p.Release()

	var done int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		if err := p.Serve(func() {
			demoFunc()
			atomic.AddInt32(&done, 1)
			wg.Done()
		}); err != nil {
			t.Fatalf("Expect no error but got %v", err)
		}
	}
	wg.Wait()

	if done != n {
		t.Errorf("Expect %d tasks done but got %d", n, done)
	}
	if p.Running() > p.Cap() {
		t.Errorf("Expect at most %d workers but got %d", p.Cap(), p.Running())
	}
	if p.Pending() != 0 {
		t.Errorf("Expect empty backlog but got %d", p.Pending())
	}
}

func TestWorkerPoolServeDoesNotBlock(t *testing.T) {
	p := NewWorkerPool(1, 0)
	defer p.Release()

	block := make(chan struct{})
	p.Serve(func() { <-block })

	returned := make(chan struct{})
	go func() {
		p.Serve(demoFunc)
		p.Serve(demoFunc)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Serve blocked on a saturated pool")
	}
	if p.Pending() != 2 {
		t.Errorf("Expect 2 pending tasks but got %d", p.Pending())
	}
	close(block)
}

func TestWorkerPoolFIFO(t *testing.T) {
	p := NewWorkerPool(1, 0)
	defer p.Release()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		p.Serve(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	for i, v := range order {
		if v != i {
			t.Fatalf("Expect task %d at position %d but got %d", i, i, v)
		}
	}
}

func TestPoolPanicWithoutHandler(t *testing.T) {
	p := NewWorkerPool(10, 0)
	defer p.Release()
	p.Serve(func() {
		panic("Oops!")
	})

	done := make(chan struct{})
	p.Serve(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stopped serving after a panic")
	}
}

func TestPoolPanicHandler(t *testing.T) {
	p := newWorkerPool(1, 0)
	defer p.Release()
	recovered := make(chan interface{}, 1)
	p.PanicHandler = func(v interface{}) { recovered <- v }
	p.Serve(func() { panic("Oops!") })

	select {
	case v := <-recovered:
		if v != "Oops!" {
			t.Errorf("Expect Oops! but got %v", v)
		}
	case <-time.After(time.Second):
		t.Fatal("panic handler was not called")
	}
}

func TestPurge(t *testing.T) {
	p := NewWorkerPool(10, 0)
	defer p.Release()

	p.Serve(demoFunc)
	time.Sleep(3 * DEFAULT_PURGE_INTERVAL_TIME * time.Second)
	if p.Running() != 0 {
		t.Error("all p should be purged")
	}
}

func TestReleasedPool(t *testing.T) {
	p := NewWorkerPool(10, 0)
	p.Release()
	if err := p.Serve(demoFunc); err != ErrPoolClosed {
		t.Errorf("Expect %v but got %v", ErrPoolClosed, err)
	}
}
