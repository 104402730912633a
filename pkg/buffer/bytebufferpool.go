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

import "sync"

const (
	// slabs from 64B up to 2MiB, so a default 1MiB transfer buffer is pooled
	minShift = 6
	maxShift = 21
	errSlot  = -1
)

var defaultPool = newByteBufferPool()

type bufferSlot struct {
	defaultSize int
	pool        sync.Pool
}

// byteBufferPool keeps one sync.Pool per power-of-two slab size
type byteBufferPool struct {
	minShift int
	minSize  int
	maxSize  int

	pool []*bufferSlot
}

func newByteBufferPool() *byteBufferPool {
	p := &byteBufferPool{
		minShift: minShift,
		minSize:  1 << minShift,
		maxSize:  1 << maxShift,
	}
	for i := 0; i <= maxShift-minShift; i++ {
		p.pool = append(p.pool, &bufferSlot{defaultSize: 1 << uint(i+minShift)})
	}
	return p
}

// slot returns the slab index serving size, errSlot when size is not pooled
func (p *byteBufferPool) slot(size int) int {
	if size < p.minSize || size > p.maxSize {
		return errSlot
	}
	shift := 0
	for n := size - 1; n > 0; n >>= 1 {
		shift++
	}
	if shift < p.minShift {
		return 0
	}
	return shift - p.minShift
}

func (p *byteBufferPool) take(size int) *[]byte {
	slot := p.slot(size)
	if slot == errSlot {
		b := make([]byte, size)
		return &b
	}
	v := p.pool[slot].pool.Get()
	if v == nil {
		b := make([]byte, p.pool[slot].defaultSize)
		b = b[0:size]
		return &b
	}
	b := v.(*[]byte)
	*b = (*b)[0:size]
	return b
}

func (p *byteBufferPool) give(buf *[]byte) {
	size := cap(*buf)
	slot := p.slot(size)
	if slot == errSlot || p.pool[slot].defaultSize != size {
		return
	}
	p.pool[slot].pool.Put(buf)
}

// GetBytes returns a byte slice of len size from the default pool
func GetBytes(size int) *[]byte {
	return defaultPool.take(size)
}

// PutBytes returns buf to the default pool
func PutBytes(buf *[]byte) {
	defaultPool.give(buf)
}
