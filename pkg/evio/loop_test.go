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

package evio

import (
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	l := NewLoop()
	go l.Run()
	t.Cleanup(func() {
		l.Stop()
		<-l.Exited()
	})
	return l
}

func TestLoopPostOrder(t *testing.T) {
	l := startLoop(t)

	const n = 1000
	var got []int
	done := make(chan struct{})
	for i := 0; i < n; i++ {
		i := i
		l.Post(func() {
			got = append(got, i)
			if i == n-1 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not drain posted events")
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("Expect event %d at position %d but got %d", i, i, v)
		}
	}
}

func TestLoopPostFromManyGoroutines(t *testing.T) {
	l := startLoop(t)

	var wg sync.WaitGroup
	counter := 0
	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				l.Post(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	l.Post(func() { close(done) })
	<-done

	if counter != 4000 {
		t.Errorf("Expect 4000 increments but got %d", counter)
	}
}

func TestLoopDeferIsNotReentrant(t *testing.T) {
	l := startLoop(t)

	depth := 0
	maxDepth := 0
	remaining := 10000
	done := make(chan struct{})

	var step func()
	step = func() {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		remaining--
		if remaining == 0 {
			close(done)
		} else {
			l.Defer(step)
		}
		depth--
	}
	l.Post(step)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deferred chain did not complete")
	}
	if maxDepth != 1 {
		t.Errorf("Expect deferred calls to run at depth 1 but got %d", maxDepth)
	}
}

func TestLoopDeferRunsAfterCurrentEvent(t *testing.T) {
	l := startLoop(t)

	var order []string
	done := make(chan struct{})
	l.Post(func() {
		l.Defer(func() {
			order = append(order, "deferred")
			close(done)
		})
		order = append(order, "event")
	})
	<-done

	if len(order) != 2 || order[0] != "event" || order[1] != "deferred" {
		t.Errorf("Expect [event deferred] but got %v", order)
	}
}

func TestLoopRecoversPanic(t *testing.T) {
	l := NewLoop()
	recovered := make(chan interface{}, 1)
	l.PanicHandler = func(p interface{}) { recovered <- p }
	go l.Run()
	defer l.Stop()

	l.Post(func() { panic("boom") })
	done := make(chan struct{})
	l.Post(func() { close(done) })

	select {
	case p := <-recovered:
		if p != "boom" {
			t.Errorf("Expect panic value boom but got %v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("panic was not recovered")
	}
	<-done
}

func TestLoopStop(t *testing.T) {
	l := NewLoop()
	go l.Run()

	l.Stop()
	select {
	case <-l.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
	}
	if l.Post(func() {}) {
		t.Error("Expect Post to fail after Stop")
	}
	if err := l.Run(); err != ErrLoopRunning {
		t.Errorf("Expect %v but got %v", ErrLoopRunning, err)
	}
}

func TestLoopAfterFunc(t *testing.T) {
	l := startLoop(t)

	fired := make(chan time.Time, 1)
	start := time.Now()
	l.AfterFunc(20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("Expect timer to wait 20ms but fired after %v", at.Sub(start))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestInputStream(t *testing.T) {
	var is InputStream

	data := is.Begin([]byte("GET / HT"))
	is.End(data[4:])
	if is.Len() != 4 {
		t.Fatalf("Expect 4 pending bytes but got %d", is.Len())
	}

	data = is.Begin([]byte("TP/1.1"))
	if string(data) != "/ HTTP/1.1" {
		t.Errorf("Expect joined data but got %q", string(data))
	}
	is.End(nil)
	if is.Len() != 0 {
		t.Errorf("Expect no pending bytes but got %d", is.Len())
	}
}
