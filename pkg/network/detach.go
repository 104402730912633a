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

package network

import (
	"net"
	"sync"
)

// prefixConn is a detached socket. Bytes read before the handoff come
// first, and writes are held until the old write queue was flushed.
type prefixConn struct {
	net.Conn

	mu      sync.Mutex
	prefix  []byte
	flushed <-chan struct{}
}

func (pc *prefixConn) Read(p []byte) (int, error) {
	pc.mu.Lock()
	if len(pc.prefix) > 0 {
		n := copy(p, pc.prefix)
		pc.prefix = pc.prefix[n:]
		pc.mu.Unlock()
		return n, nil
	}
	pc.mu.Unlock()
	return pc.Conn.Read(p)
}

func (pc *prefixConn) Write(p []byte) (int, error) {
	<-pc.flushed
	return pc.Conn.Write(p)
}

// Buffered returns the number of rolled back bytes not read yet.
func (pc *prefixConn) Buffered() int {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.prefix)
}
