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

package stream

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"kiln/pkg/buffer"
	"kiln/pkg/evio"
	"kiln/pkg/sync"
)

type testSink struct {
	sched     evio.Scheduler
	max       int
	failAfter int

	out         bytes.Buffer
	writes      int
	inFlight    int
	maxInFlight int
	maxBuffered int
	transfer    *Transfer
	onWrite     func()
}

func (s *testSink) WriteAsync(p []byte, done func(n int, err error)) error {
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	if s.transfer != nil && s.transfer.Buffered() > s.maxBuffered {
		s.maxBuffered = s.transfer.Buffered()
	}
	s.writes++
	if s.onWrite != nil {
		s.onWrite()
	}

	n := len(p)
	if s.max > 0 && n > s.max {
		n = s.max
	}
	fail := s.failAfter > 0 && s.writes >= s.failAfter
	if !fail {
		s.out.Write(p[:n])
	}
	s.sched.Post(func() {
		s.inFlight--
		if fail {
			done(0, errors.New("broken pipe"))
			return
		}
		done(n, nil)
	})
	return nil
}

type scriptSource struct {
	sched  evio.Scheduler
	data   []byte
	err    error
	reads  int
	closed int
}

func (s *scriptSource) Read(p []byte, done func(n int, err error)) {
	s.reads++
	n := copy(p, s.data)
	s.data = s.data[n:]
	var err error
	if len(s.data) == 0 {
		err = s.err
	}
	s.sched.Post(func() { done(n, err) })
}

func (s *scriptSource) Close() error {
	s.closed++
	return nil
}

func startLoop(t *testing.T) *evio.Loop {
	l := evio.NewLoop()
	go l.Run()
	t.Cleanup(func() {
		l.Stop()
		<-l.Exited()
	})
	return l
}

// onLoop runs fn on the loop and waits for it.
func onLoop(l *evio.Loop, fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	<-done
}

func waitReason(t *testing.T, ch <-chan ReleaseReason) ReleaseReason {
	select {
	case r := <-ch:
		return r
	case <-time.After(10 * time.Second):
		t.Fatal("transfer was not released")
	}
	return ""
}

func TestTransferLargeBody(t *testing.T) {
	l := startLoop(t)
	pool := sync.NewWorkerPool(4, 0)
	defer pool.Release()

	data := make([]byte, 3*buffer.DefaultTransferSize+12345)
	rand.New(rand.NewSource(1)).Read(data)

	sink := &testSink{sched: l, max: 300 * 1024}
	src := NewReaderSource(bytes.NewReader(data), l, pool)
	released := make(chan ReleaseReason, 2)

	var tr *Transfer
	onLoop(l, func() {
		tr = NewTransfer(src, sink, l, 0, func(r ReleaseReason) { released <- r })
		sink.transfer = tr
		tr.Start()
	})

	if r := waitReason(t, released); r != SourceExhausted {
		t.Errorf("Expect %s but got %s", SourceExhausted, r)
	}
	onLoop(l, func() {
		if !bytes.Equal(sink.out.Bytes(), data) {
			t.Errorf("Expect %d identical bytes but got %d", len(data), sink.out.Len())
		}
		if sink.maxInFlight != 1 {
			t.Errorf("Expect one write in flight but got %d", sink.maxInFlight)
		}
		if sink.maxBuffered > buffer.DefaultTransferSize {
			t.Errorf("Expect at most %d buffered bytes but got %d", buffer.DefaultTransferSize, sink.maxBuffered)
		}
		if tr.Written() != int64(len(data)) {
			t.Errorf("Expect %d written but got %d", len(data), tr.Written())
		}
	})
	if len(released) != 0 {
		t.Error("Expect release to fire once")
	}
}

func TestTransferScenarios(t *testing.T) {
	convey.Convey("given a transfer on the event loop", t, func() {
		l := startLoop(t)
		released := make(chan ReleaseReason, 4)
		onRelease := func(r ReleaseReason) { released <- r }

		convey.Convey("an empty source is released without writes", func() {
			src := &scriptSource{sched: l, err: io.EOF}
			sink := &testSink{sched: l}
			onLoop(l, func() {
				NewTransfer(src, sink, l, 16, onRelease).Start()
			})
			convey.So(waitReason(t, released), convey.ShouldEqual, SourceExhausted)
			var writes, closed int
			onLoop(l, func() { writes, closed = sink.writes, src.closed })
			convey.So(writes, convey.ShouldEqual, 0)
			convey.So(closed, convey.ShouldEqual, 1)
		})

		convey.Convey("partial writes resume from the read cursor", func() {
			body := strings.Repeat("0123456789", 10)
			src := &scriptSource{sched: l, data: []byte(body), err: io.EOF}
			sink := &testSink{sched: l, max: 7}
			onLoop(l, func() {
				NewTransfer(src, sink, l, 32, onRelease).Start()
			})
			convey.So(waitReason(t, released), convey.ShouldEqual, SourceExhausted)
			var out string
			var reads int
			onLoop(l, func() { out, reads = sink.out.String(), src.reads })
			convey.So(out, convey.ShouldEqual, body)
			convey.So(reads, convey.ShouldEqual, 4)
		})

		convey.Convey("losing the sink releases the source", func() {
			src := &scriptSource{sched: l, data: bytes.Repeat([]byte("x"), 100), err: io.EOF}
			sink := &testSink{sched: l, max: 10, failAfter: 3}
			onLoop(l, func() {
				NewTransfer(src, sink, l, 64, onRelease).Start()
			})
			convey.So(waitReason(t, released), convey.ShouldEqual, SinkLost)
			var closed, writes, n int
			onLoop(l, func() { closed, writes, n = src.closed, sink.writes, sink.out.Len() })
			convey.So(closed, convey.ShouldEqual, 1)
			convey.So(writes, convey.ShouldEqual, 3)
			convey.So(n, convey.ShouldEqual, 20)
		})

		convey.Convey("a closed sink is reported by its owner", func() {
			src := &scriptSource{sched: l, data: bytes.Repeat([]byte("y"), 100), err: io.EOF}
			sink := &testSink{sched: l, max: 10}
			var tr *Transfer
			sink.onWrite = func() {
				if sink.writes == 2 {
					tr.OnSinkClosed()
				}
			}
			onLoop(l, func() {
				tr = NewTransfer(src, sink, l, 64, onRelease)
				tr.Start()
			})
			convey.So(waitReason(t, released), convey.ShouldEqual, SinkLost)
			onLoop(l, func() {})
			var writes int
			var done bool
			onLoop(l, func() { writes, done = sink.writes, tr.Released() })
			convey.So(writes, convey.ShouldEqual, 2)
			convey.So(done, convey.ShouldBeTrue)
		})

		convey.Convey("a read error stalls until cancelled", func() {
			src := &scriptSource{sched: l, data: []byte("abc"), err: errors.New("disk failure")}
			sink := &testSink{sched: l}
			var tr *Transfer
			onLoop(l, func() {
				tr = NewTransfer(src, sink, l, 64, onRelease)
				tr.Start()
			})
			time.Sleep(50 * time.Millisecond)
			var out string
			var done bool
			var reads, closed int
			onLoop(l, func() { out, done, reads = sink.out.String(), tr.Released(), src.reads })
			convey.So(out, convey.ShouldEqual, "abc")
			convey.So(done, convey.ShouldBeFalse)
			convey.So(reads, convey.ShouldEqual, 1)

			onLoop(l, func() {
				tr.Cancel()
				tr.Cancel()
			})
			convey.So(waitReason(t, released), convey.ShouldEqual, LocalCancel)
			convey.So(len(released), convey.ShouldEqual, 0)
			onLoop(l, func() { closed = src.closed })
			convey.So(closed, convey.ShouldEqual, 1)
		})
	})
}

func TestTransferFileSource(t *testing.T) {
	l := startLoop(t)
	path := filepath.Join(t.TempDir(), "body.bin")
	data := bytes.Repeat([]byte("kiln"), 5000)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := SizeOf(f); n != int64(len(data)) {
		t.Errorf("Expect size %d but got %d", len(data), n)
	}

	sink := &testSink{sched: l}
	released := make(chan ReleaseReason, 1)
	onLoop(l, func() {
		NewTransfer(NewReaderSource(f, l, nil), sink, l, 4096, func(r ReleaseReason) { released <- r }).Start()
	})
	waitReason(t, released)
	onLoop(l, func() {
		if !bytes.Equal(sink.out.Bytes(), data) {
			t.Errorf("Expect file content but got %d bytes", sink.out.Len())
		}
	})
	if _, err := f.Read(make([]byte, 1)); err == nil {
		t.Error("Expect the file to be closed")
	}
}

func TestSizeOf(t *testing.T) {
	r := strings.NewReader("hello")
	r.ReadByte()
	if n := SizeOf(r); n != 4 {
		t.Errorf("Expect 4 but got %d", n)
	}
	if n := SizeOf(io.LimitReader(r, 2)); n != -1 {
		t.Errorf("Expect unknown size but got %d", n)
	}
	if n := SizeOf(bytes.NewBufferString("abc")); n != 3 {
		t.Errorf("Expect 3 but got %d", n)
	}

	sr := io.NewSectionReader(strings.NewReader("0123456789"), 2, 6)
	if n := SizeOf(sr); n != 6 {
		t.Errorf("Expect 6 but got %d", n)
	}
	sr.Read(make([]byte, 4))
	if n := SizeOf(sr); n != 2 {
		t.Errorf("Expect 2 left after a partial read but got %d", n)
	}

	f, err := os.CreateTemp("", "kiln-size")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()
	f.WriteString("abcdef")
	f.Seek(1, io.SeekStart)
	if n := SizeOf(f); n != 5 {
		t.Errorf("Expect 5 left in the file but got %d", n)
	}
}
