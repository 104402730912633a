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

// Package parser is an incremental, callback driven HTTP/1.x request parser.
// It never buffers a body: body fragments are handed to the callbacks as
// sub slices of the input. Slices passed to callbacks are only valid for the
// duration of the call.
package parser

import (
	"bytes"
	"errors"
)

const (
	DefaultMaxHeaderBytes = 80 * 1024

	maxChunkLineBytes = 1024
)

var (
	ErrHeaderTooLarge          = errors.New("request header block exceeds the limit")
	ErrBodyTooLarge            = errors.New("body size exceeds the given limit")
	ErrInvalidRequestLine      = errors.New("invalid request line")
	ErrInvalidMethod           = errors.New("invalid request method")
	ErrInvalidTarget           = errors.New("invalid request target")
	ErrInvalidVersion          = errors.New("unsupported HTTP version")
	ErrInvalidHeader           = errors.New("invalid header field")
	ErrInvalidContentLength    = errors.New("invalid Content-Length")
	ErrContentLengthConflict   = errors.New("both Content-Length and Transfer-Encoding present")
	ErrInvalidTransferEncoding = errors.New("unsupported Transfer-Encoding")
	ErrInvalidChunk            = errors.New("invalid chunked body")
	ErrUpgraded                = errors.New("connection was upgraded")
)

// Callbacks receive parse events in stream order. A non nil error aborts
// parsing and is returned by Execute.
type Callbacks interface {
	OnMessageBegin() error
	OnRequestLine(method, target []byte, major, minor int) error
	OnHeader(name, value []byte) error
	OnHeadersComplete() error
	OnBody(fragment []byte) error
	OnMessageComplete() error
}

type state uint8

const (
	stateStart state = iota
	stateRequestLine
	stateHeaderLine
	stateBodyIdentity
	stateChunkSize
	stateChunkData
	stateChunkDataEnd
	stateTrailer
	stateMessageDone
	stateUpgraded
	stateDead
)

// Parser holds the state of one connection's request stream. The zero value
// is ready to use.
type Parser struct {
	// MaxHeaderBytes bounds the request line plus header block,
	// DefaultMaxHeaderBytes when zero.
	MaxHeaderBytes int
	// MaxBodyBytes bounds the decoded body, unlimited when zero.
	MaxBodyBytes int64

	state       state
	err         error
	line        []byte
	headerBytes int
	bodyBytes   int64
	remaining   int64

	contentLength int64
	hasTE         bool
	chunked       bool
	upgrade       bool

	pendingName  []byte
	pendingValue []byte
	hasPending   bool
}

// Execute parses data and returns the number of bytes consumed. It stops
// early, without error, right after a message completes and right after the
// header block of an upgrade request; the caller decides what to do with
// the remaining bytes.
func (p *Parser) Execute(cb Callbacks, data []byte) (int, error) {
	switch p.state {
	case stateDead:
		return 0, p.err
	case stateUpgraded:
		return 0, ErrUpgraded
	case stateMessageDone:
		p.Reset()
	}

	i := 0
	for i < len(data) {
		switch p.state {
		case stateStart:
			// tolerate empty lines between pipelined messages
			if c := data[i]; c == '\r' || c == '\n' {
				i++
				continue
			}
			p.begin()
			if err := cb.OnMessageBegin(); err != nil {
				return i, p.fail(err)
			}
			p.state = stateRequestLine

		case stateBodyIdentity, stateChunkData:
			n := int64(len(data) - i)
			if n > p.remaining {
				n = p.remaining
			}
			if err := cb.OnBody(data[i : i+int(n)]); err != nil {
				return i, p.fail(err)
			}
			i += int(n)
			p.remaining -= n
			if p.remaining == 0 {
				if p.state == stateChunkData {
					p.state = stateChunkDataEnd
				} else if err := p.complete(cb); err != nil {
					return i, err
				}
			}

		default:
			line, n, ok, err := p.readLine(data[i:])
			i += n
			if err != nil {
				return i, p.fail(err)
			}
			if !ok {
				continue
			}
			if err := p.onLine(cb, line); err != nil {
				return i, err
			}
		}

		if p.state == stateMessageDone || p.state == stateUpgraded {
			return i, nil
		}
	}
	return i, nil
}

// Upgrade reports whether the header block just parsed requested a
// protocol upgrade.
func (p *Parser) Upgrade() bool {
	return p.state == stateUpgraded
}

// Done reports whether a message just completed.
func (p *Parser) Done() bool {
	return p.state == stateMessageDone
}

// ContentLength of the current message, -1 when absent.
func (p *Parser) ContentLength() int64 {
	return p.contentLength
}

func (p *Parser) Chunked() bool {
	return p.chunked
}

// Reset prepares the parser for a new message and clears any error.
func (p *Parser) Reset() {
	p.state = stateStart
	p.err = nil
	p.line = p.line[:0]
	p.begin()
}

func (p *Parser) begin() {
	p.headerBytes = 0
	p.bodyBytes = 0
	p.remaining = 0
	p.contentLength = -1
	p.hasTE = false
	p.chunked = false
	p.upgrade = false
	p.hasPending = false
}

func (p *Parser) fail(err error) error {
	p.state = stateDead
	p.err = err
	return err
}

func (p *Parser) complete(cb Callbacks) error {
	p.state = stateMessageDone
	if err := cb.OnMessageComplete(); err != nil {
		return p.fail(err)
	}
	return nil
}

// readLine accumulates data up to and including the next LF and returns the
// line without its terminator. ok is false when more data is needed.
func (p *Parser) readLine(data []byte) (line []byte, n int, ok bool, err error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		n = len(data)
	} else {
		n = idx + 1
	}

	switch p.state {
	case stateRequestLine, stateHeaderLine, stateTrailer:
		p.headerBytes += n
		max := p.MaxHeaderBytes
		if max <= 0 {
			max = DefaultMaxHeaderBytes
		}
		if p.headerBytes > max {
			return nil, n, false, ErrHeaderTooLarge
		}
	default:
		if len(p.line)+n > maxChunkLineBytes {
			return nil, n, false, ErrInvalidChunk
		}
	}

	if idx < 0 {
		p.line = append(p.line, data...)
		return nil, n, false, nil
	}
	if len(p.line) == 0 {
		line = data[:idx]
	} else {
		p.line = append(p.line, data[:idx]...)
		line = p.line
	}
	p.line = p.line[:0]
	if l := len(line); l > 0 && line[l-1] == '\r' {
		line = line[:l-1]
	}
	return line, n, true, nil
}

func (p *Parser) onLine(cb Callbacks, line []byte) error {
	switch p.state {
	case stateRequestLine:
		return p.onRequestLine(cb, line)
	case stateHeaderLine:
		return p.onHeaderLine(cb, line)
	case stateChunkSize:
		return p.onChunkSize(line)
	case stateChunkDataEnd:
		if len(line) != 0 {
			return p.fail(ErrInvalidChunk)
		}
		p.state = stateChunkSize
	case stateTrailer:
		// trailer fields are discarded
		if len(line) == 0 {
			return p.complete(cb)
		}
	}
	return nil
}

func (p *Parser) onRequestLine(cb Callbacks, line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return p.fail(ErrInvalidRequestLine)
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return p.fail(ErrInvalidRequestLine)
	}
	method, target, version := line[:sp1], rest[:sp2], rest[sp2+1:]

	if !isToken(method) {
		return p.fail(ErrInvalidMethod)
	}
	if len(target) == 0 {
		return p.fail(ErrInvalidTarget)
	}
	for _, c := range target {
		if c <= ' ' || c == 0x7f {
			return p.fail(ErrInvalidTarget)
		}
	}
	major, minor, ok := parseVersion(version)
	if !ok {
		return p.fail(ErrInvalidVersion)
	}

	p.state = stateHeaderLine
	if err := cb.OnRequestLine(method, target, major, minor); err != nil {
		return p.fail(err)
	}
	return nil
}

func (p *Parser) onHeaderLine(cb Callbacks, line []byte) error {
	if len(line) == 0 {
		if err := p.flushHeader(cb); err != nil {
			return err
		}
		return p.headersComplete(cb)
	}

	// obsolete line folding continues the previous value
	if line[0] == ' ' || line[0] == '\t' {
		if !p.hasPending {
			return p.fail(ErrInvalidHeader)
		}
		value := trimOWS(line)
		if !isFieldValue(value) {
			return p.fail(ErrInvalidHeader)
		}
		if len(value) > 0 {
			p.pendingValue = append(append(p.pendingValue, ' '), value...)
		}
		return nil
	}

	if err := p.flushHeader(cb); err != nil {
		return err
	}
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 || !isToken(line[:colon]) {
		return p.fail(ErrInvalidHeader)
	}
	value := trimOWS(line[colon+1:])
	if !isFieldValue(value) {
		return p.fail(ErrInvalidHeader)
	}
	p.pendingName = append(p.pendingName[:0], line[:colon]...)
	p.pendingValue = append(p.pendingValue[:0], value...)
	p.hasPending = true
	return nil
}

func (p *Parser) flushHeader(cb Callbacks) error {
	if !p.hasPending {
		return nil
	}
	p.hasPending = false
	if err := p.inspect(p.pendingName, p.pendingValue); err != nil {
		return p.fail(err)
	}
	if err := cb.OnHeader(p.pendingName, p.pendingValue); err != nil {
		return p.fail(err)
	}
	return nil
}

// inspect tracks the headers which decide message framing.
func (p *Parser) inspect(name, value []byte) error {
	switch {
	case equalFold(name, "content-length"):
		n, ok := parseContentLength(value)
		if !ok {
			return ErrInvalidContentLength
		}
		if p.contentLength >= 0 && p.contentLength != n {
			return ErrInvalidContentLength
		}
		p.contentLength = n
	case equalFold(name, "transfer-encoding"):
		p.hasTE = true
		coding := value
		if i := bytes.LastIndexByte(value, ','); i >= 0 {
			coding = value[i+1:]
		}
		p.chunked = equalFold(trimOWS(coding), "chunked")
	case equalFold(name, "upgrade"):
		if len(value) > 0 {
			p.upgrade = true
		}
	}
	return nil
}

func (p *Parser) headersComplete(cb Callbacks) error {
	if p.hasTE {
		if p.contentLength >= 0 {
			return p.fail(ErrContentLengthConflict)
		}
		if !p.chunked {
			return p.fail(ErrInvalidTransferEncoding)
		}
	}
	if p.contentLength > 0 && p.MaxBodyBytes > 0 && p.contentLength > p.MaxBodyBytes {
		return p.fail(ErrBodyTooLarge)
	}

	if err := cb.OnHeadersComplete(); err != nil {
		return p.fail(err)
	}

	switch {
	case p.upgrade:
		p.state = stateUpgraded
	case p.chunked:
		p.state = stateChunkSize
	case p.contentLength > 0:
		p.remaining = p.contentLength
		p.state = stateBodyIdentity
	default:
		return p.complete(cb)
	}
	return nil
}

func (p *Parser) onChunkSize(line []byte) error {
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = trimOWS(line)
	if len(line) == 0 || len(line) > 15 {
		return p.fail(ErrInvalidChunk)
	}
	var size int64
	for _, c := range line {
		v, ok := unhex(c)
		if !ok {
			return p.fail(ErrInvalidChunk)
		}
		size = size<<4 | int64(v)
	}

	if size == 0 {
		p.state = stateTrailer
		return nil
	}
	p.bodyBytes += size
	if p.MaxBodyBytes > 0 && p.bodyBytes > p.MaxBodyBytes {
		return p.fail(ErrBodyTooLarge)
	}
	p.remaining = size
	p.state = stateChunkData
	return nil
}
