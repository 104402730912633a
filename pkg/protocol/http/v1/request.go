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
	"net"
	"net/url"
	"strconv"
)

// State of a request on its connection.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateMessageComplete
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInProgress:
		return "InProgress"
	case StateMessageComplete:
		return "MessageComplete"
	case StateError:
		return "Error"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// Request represents HTTP request.
//
// Request instance MUST NOT be used from concurrently running goroutines,
// and is reused for every message of its connection.
type Request struct {
	Method string
	Target string
	Major  int
	Minor  int

	Header HeaderTable
	Body   []byte

	RemoteAddr net.Addr

	state State
	uri   *url.URL
}

func (req *Request) State() State {
	return req.state
}

// URL parses the request target on first use.
func (req *Request) URL() (*url.URL, error) {
	if req.uri != nil {
		return req.uri, nil
	}
	u, err := url.ParseRequestURI(req.Target)
	if err != nil {
		return nil, err
	}
	req.uri = u
	return u, nil
}

// Path returns the decoded path of the target, or the raw target when it
// cannot be parsed.
func (req *Request) Path() string {
	u, err := req.URL()
	if err != nil {
		return req.Target
	}
	return u.Path
}

// Protocol returns the version as written on the request line.
func (req *Request) Protocol() string {
	return "HTTP/" + strconv.Itoa(req.Major) + "." + strconv.Itoa(req.Minor)
}

// KeepAlive reports whether the connection may serve another request
// after this one.
func (req *Request) KeepAlive() bool {
	if req.Header.HasToken("Connection", "close") {
		return false
	}
	if req.Major == 1 && req.Minor == 0 {
		return req.Header.HasToken("Connection", "keep-alive")
	}
	return true
}

// Upgrade returns the protocol requested by the Upgrade header.
func (req *Request) Upgrade() string {
	return req.Header.Peek("Upgrade")
}

// Reset clears the request back to Idle.
func (req *Request) Reset() {
	req.Method = ""
	req.Target = ""
	req.Major = 0
	req.Minor = 0
	req.Header.Reset()
	req.Body = nil
	req.state = StateIdle
	req.uri = nil
}
