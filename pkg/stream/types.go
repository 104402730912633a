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

// ReleaseReason defines why a transfer released its source
type ReleaseReason string

// Group of release reasons
const (
	SourceExhausted ReleaseReason = "SourceExhausted"
	SinkLost        ReleaseReason = "SinkLost"
	LocalCancel     ReleaseReason = "LocalCancel"
)

// Source is a readable body source. Read must not block: it starts filling
// p and calls done on the event loop once data, io.EOF or an error is
// available. At most one Read is outstanding.
type Source interface {
	Read(p []byte, done func(n int, err error))

	// Close destroys the source, it may be called while a Read is pending.
	Close() error
}

// Sink is a writable destination, usually a connection. WriteAsync keeps p
// until done is called on the event loop with the number of bytes written.
type Sink interface {
	WriteAsync(p []byte, done func(n int, err error)) error
}
