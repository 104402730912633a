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

import (
	"math/rand"
	"testing"
)

// intRange returns a value in (min, max]
func intRange(min, max int) int {
	return rand.Intn(max-min) + min + 1
}

func intN(n int) int {
	return rand.Intn(n) + 1
}

func TestByteBufferPoolSmallBytes(t *testing.T) {
	pool := newByteBufferPool()

	for i := 0; i < 1024; i++ {
		size := intN(1<<minShift - 1)
		bp := pool.take(size)

		if cap(*bp) != size {
			t.Errorf("Expect get the %d bytes from pool, but got %d", size, cap(*bp))
		}

		pool.give(bp)
	}
}

func TestBytesBufferPoolMediumBytes(t *testing.T) {
	pool := newByteBufferPool()

	for i := minShift; i < maxShift; i++ {
		size := intRange(1<<uint(i), 1<<uint(i+1))
		bp := pool.take(size)

		if cap(*bp) != 1<<uint(i+1) {
			t.Errorf("Expect get the slab size (%d) from pool, but got %d", 1<<uint(i+1), cap(*bp))
		}
		if len(*bp) != size {
			t.Errorf("Expect len %d but got %d", size, len(*bp))
		}

		pool.give(bp)
	}
}

func TestBytesBufferPoolLargeBytes(t *testing.T) {
	pool := newByteBufferPool()

	for i := 0; i < 16; i++ {
		size := 1<<maxShift + intN(i+1)
		bp := pool.take(size)

		if cap(*bp) != size {
			t.Errorf("Expect get the %d bytes from pool, but got %d", size, cap(*bp))
		}

		pool.give(bp)
	}
}

func TestBytesBufferPoolReuse(t *testing.T) {
	pool := newByteBufferPool()

	bp := pool.take(1 << 20)
	(*bp)[0] = 'k'
	pool.give(bp)

	again := pool.take(1000)
	if cap(*again) != 1024 {
		t.Errorf("Expect slab 1024 but got %d", cap(*again))
	}
	if len(*again) != 1000 {
		t.Errorf("Expect len 1000 but got %d", len(*again))
	}
}
