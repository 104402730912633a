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

package v1

import (
	"kiln/pkg/protocol/http/parser"
)

const maxBodyPrealloc = 64 * 1024

// Event is the outcome of one Feed call.
type Event int

const (
	// EventPartial: every byte was consumed, more input is needed
	EventPartial Event = iota
	EventMessageComplete
	EventUpgradeRequested
	EventError
)

func (e Event) String() string {
	switch e {
	case EventPartial:
		return "Partial"
	case EventMessageComplete:
		return "MessageComplete"
	case EventUpgradeRequested:
		return "UpgradeRequested"
	case EventError:
		return "Error"
	}
	return "Event(?)"
}

// Assembler builds the Request of one connection from fragmented reads.
type Assembler struct {
	parser parser.Parser
	req    Request
	err    error
}

// NewAssembler creates an assembler, zero limits select the parser
// defaults.
func NewAssembler(maxHeaderBytes int, maxBodyBytes int64) *Assembler {
	a := &Assembler{}
	a.parser.MaxHeaderBytes = maxHeaderBytes
	a.parser.MaxBodyBytes = maxBodyBytes
	a.parser.Reset()
	return a
}

// Request returns the request being assembled.
func (a *Assembler) Request() *Request {
	return &a.req
}

// Feed consumes data and reports what happened. After EventMessageComplete
// the bytes past consumed belong to the next pipelined message; after
// EventUpgradeRequested they belong to the upgraded protocol. A completed
// request is cleared at the next Feed.
func (a *Assembler) Feed(data []byte) (consumed int, ev Event, err error) {
	switch a.req.state {
	case StateError:
		return 0, EventError, a.err
	case StateMessageComplete:
		if a.parser.Upgrade() {
			return 0, EventError, parser.ErrUpgraded
		}
		a.Reset()
	}

	n, err := a.parser.Execute((*callbacks)(a), data)
	if err != nil {
		a.req.state = StateError
		a.err = err
		return n, EventError, err
	}
	switch {
	case a.parser.Upgrade():
		a.req.state = StateMessageComplete
		return n, EventUpgradeRequested, nil
	case a.parser.Done():
		return n, EventMessageComplete, nil
	}
	return n, EventPartial, nil
}

// Reset clears the request back to Idle for the next message on the same
// connection.
func (a *Assembler) Reset() {
	a.req.Reset()
	a.parser.Reset()
	a.err = nil
}

// callbacks receives the parser events on behalf of the Assembler.
type callbacks Assembler

func (c *callbacks) OnMessageBegin() error {
	c.req.state = StateInProgress
	return nil
}

func (c *callbacks) OnRequestLine(method, target []byte, major, minor int) error {
	c.req.Method = string(method)
	c.req.Target = string(target)
	c.req.Major = major
	c.req.Minor = minor
	return nil
}

func (c *callbacks) OnHeader(name, value []byte) error {
	c.req.Header.Add(string(name), string(value))
	return nil
}

func (c *callbacks) OnHeadersComplete() error {
	if n := c.parser.ContentLength(); n > 0 {
		c.req.Body = make([]byte, 0, int(min(n, maxBodyPrealloc)))
	}
	return nil
}

func (c *callbacks) OnBody(fragment []byte) error {
	c.req.Body = append(c.req.Body, fragment...)
	return nil
}

func (c *callbacks) OnMessageComplete() error {
	c.req.state = StateMessageComplete
	return nil
}
