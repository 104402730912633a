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
	"io"
	"io/fs"

	"kiln/pkg/evio"
	"kiln/pkg/sync"
)

type readerSource struct {
	r       io.Reader
	sched   evio.Scheduler
	workers sync.WorkerPool
}

// NewReaderSource adapts a blocking reader. Reads run on the worker pool,
// or on a fresh goroutine when workers is nil, and complete on sched.
func NewReaderSource(r io.Reader, sched evio.Scheduler, workers sync.WorkerPool) Source {
	return &readerSource{
		r:       r,
		sched:   sched,
		workers: workers,
	}
}

func (s *readerSource) Read(p []byte, done func(n int, err error)) {
	task := func() {
		n, err := io.ReadFull(s.r, p)
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		s.sched.Post(func() {
			done(n, err)
		})
	}

	if s.workers == nil {
		go task()
		return
	}
	if err := s.workers.Serve(task); err != nil {
		s.sched.Post(func() {
			done(0, err)
		})
	}
}

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SizeOf reports the number of bytes r will yield when it is known
// upfront, -1 otherwise. Regular files, in-memory readers and anything with
// a Size method qualify. Readers which also seek are measured from their
// current offset.
func SizeOf(r io.Reader) int64 {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len())
	case interface{ Size() int64 }:
		return remaining(r, v.Size())
	case fs.File:
		fi, err := v.Stat()
		if err != nil || !fi.Mode().IsRegular() {
			return -1
		}
		return remaining(r, fi.Size())
	}
	return -1
}

func remaining(r io.Reader, size int64) int64 {
	s, ok := r.(io.Seeker)
	if !ok {
		return size
	}
	off, err := s.Seek(0, io.SeekCurrent)
	if err != nil || off > size {
		return -1
	}
	return size - off
}
