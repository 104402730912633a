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
	"encoding/json"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"kiln/pkg/evio"
	"kiln/pkg/log"
	"kiln/pkg/stream"
	"kiln/pkg/sync"
)

const (
	MimeEmpty = "application/x-empty"
	MimeJSON  = "text/json"
)

var (
	ErrStatusLineWritten = errors.New("status line already written")
	ErrNoStatusLine      = errors.New("status line not written")
	ErrHeadersSent       = errors.New("response headers already sent")
	ErrDisconnected      = errors.New("cannot write to socket, it is disconnected")
	ErrNoScheduler       = errors.New("streaming a body needs an event loop")
)

// Conn is the part of a connection a response writes to. Write copies p,
// WriteAsync keeps p until done runs.
type Conn interface {
	Write(p []byte) error
	WriteAsync(p []byte, done func(n int, err error)) error
	IsClosed() bool
}

// ResponseOptions carries what streamed bodies need.
type ResponseOptions struct {
	Scheduler    evio.Scheduler
	Workers      sync.WorkerPool
	TransferSize int
}

// Response writes one answer to its connection. The status line is written
// once, headers are appended until the header block is sent, after which
// the response is sealed.
//
// Response instance MUST NOT be used from concurrently running goroutines.
type Response struct {
	// Major and Minor select the version of the status line, 1.1 unless
	// changed before the first write.
	Major int
	Minor int

	// KeepAlive announces a persistent connection on HTTP/1.0 responses.
	KeepAlive bool

	conn Conn
	opts ResponseOptions

	head    []byte
	headers HeaderTable
	status  int

	statusWritten bool
	sealed        bool
	closeConn     bool
	done          bool

	transfer *stream.Transfer
	onDone   func(resp *Response)
}

// NewResponse creates a response on conn. onDone runs once the whole
// response was handed to the connection, or the transfer of its body
// ended.
func NewResponse(conn Conn, opts ResponseOptions, onDone func(resp *Response)) *Response {
	return &Response{
		Major:  1,
		Minor:  1,
		conn:   conn,
		opts:   opts,
		onDone: onDone,
	}
}

func (r *Response) Status() int {
	return r.status
}

// Header returns the headers added so far.
func (r *Response) Header() *HeaderTable {
	return &r.headers
}

func (r *Response) Sealed() bool {
	return r.sealed
}

// Done reports whether the response is complete.
func (r *Response) Done() bool {
	return r.done
}

// CloseConnection reports whether the connection must be closed once the
// response completed: the framing relies on it, or a "Connection: close"
// header was sent.
func (r *Response) CloseConnection() bool {
	return r.closeConn
}

// Transfer returns the active body transfer, nil when there is none.
func (r *Response) Transfer() *stream.Transfer {
	if r.transfer == nil || r.transfer.Released() {
		return nil
	}
	return r.transfer
}

// WriteStatusLine emits the status line, an empty reason selects the
// standard phrase.
func (r *Response) WriteStatusLine(status int, reason string, major, minor int) error {
	if r.statusWritten {
		log.DefaultLogger.Errorf("response: status line already written, dropping %d", status)
		return ErrStatusLineWritten
	}
	if reason == "" {
		reason = StatusText(status)
	}
	r.statusWritten = true
	r.status = status
	r.head = append(r.head, "HTTP/"...)
	r.head = strconv.AppendInt(r.head, int64(major), 10)
	r.head = append(r.head, '.')
	r.head = strconv.AppendInt(r.head, int64(minor), 10)
	r.head = append(r.head, ' ')
	r.head = strconv.AppendInt(r.head, int64(status), 10)
	r.head = append(r.head, ' ')
	r.head = append(r.head, reason...)
	r.head = append(r.head, "\r\n"...)
	return nil
}

// AddHeader appends a header. It fails once the header block was sent, or
// when name or value would break the framing.
func (r *Response) AddHeader(name, value string) bool {
	if r.sealed {
		log.DefaultLogger.Errorf("response: header %s added after the header block was sent", name)
		return false
	}
	if name == "" || strings.ContainsAny(name, "\r\n: ") || strings.ContainsAny(value, "\r\n") {
		log.DefaultLogger.Warnf("response: invalid header %q", name)
		return false
	}
	r.headers.Add(name, value)
	if r.headers.HasToken("Connection", "close") {
		r.closeConn = true
	}
	return true
}

// Write answers with a fixed body.
func (r *Response) Write(data []byte, mimeType string, status int) error {
	if err := r.begin(status); err != nil {
		return err
	}
	r.AddHeader("Content-Type", mimeType)
	r.AddHeader("Content-Length", strconv.Itoa(len(data)))
	if err := r.endHeaders(); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := r.conn.Write(data); err != nil {
			return err
		}
	}
	r.finish()
	return nil
}

// WriteStatus answers with an empty body.
func (r *Response) WriteStatus(status int) error {
	return r.Write(nil, MimeEmpty, status)
}

// WriteJSON answers with the JSON encoding of v.
func (r *Response) WriteJSON(v interface{}, status int) error {
	data, err := json.Marshal(v)
	if err != nil {
		log.DefaultLogger.Errorf("500: could not encode JSON body: %v", err)
		return r.WriteStatus(StatusInternalServerError)
	}
	return r.Write(data, MimeJSON, status)
}

// WriteFile streams the file at path.
func (r *Response) WriteFile(path, mimeType string, status int) error {
	f, err := os.Open(path)
	if err != nil {
		log.DefaultLogger.Debugf("500: could not open file %s: %v", path, err)
		return r.WriteStatus(StatusInternalServerError)
	}
	if fi, err := f.Stat(); err != nil || fi.IsDir() {
		f.Close()
		log.DefaultLogger.Debugf("500: %s is not a readable file", path)
		return r.WriteStatus(StatusInternalServerError)
	}
	return r.WriteStream(f, mimeType, status)
}

// WriteStream answers with the content of src, which the response then
// owns and closes. When the size of src is known upfront Content-Length is
// sent, otherwise the end of the body is signalled by closing the
// connection.
func (r *Response) WriteStream(src io.Reader, mimeType string, status int) error {
	if src == nil {
		log.DefaultLogger.Debugf("500: body source is nil")
		return r.WriteStatus(StatusInternalServerError)
	}
	if r.opts.Scheduler == nil {
		closeSource(src)
		return ErrNoScheduler
	}
	if err := r.begin(status); err != nil {
		closeSource(src)
		return err
	}

	size := stream.SizeOf(src)
	if size >= 0 {
		r.AddHeader("Content-Length", strconv.FormatInt(size, 10))
	}
	r.AddHeader("Content-Type", mimeType)
	if size < 0 {
		r.AddHeader("Connection", "close")
	}
	if err := r.endHeaders(); err != nil {
		closeSource(src)
		return err
	}

	if size == 0 {
		closeSource(src)
		r.finish()
		return nil
	}

	body := stream.NewReaderSource(src, r.opts.Scheduler, r.opts.Workers)
	var tr *stream.Transfer
	tr = stream.NewTransfer(body, r.conn, r.opts.Scheduler, r.opts.TransferSize, func(reason stream.ReleaseReason) {
		// a short body under Content-Length can only be closed out
		if reason != stream.SourceExhausted || (size > 0 && tr.Written() != size) {
			r.closeConn = true
		}
		r.finish()
	})
	r.transfer = tr
	tr.Start()
	return nil
}

// OnConnectionClosed stops an active transfer, its sink went away.
func (r *Response) OnConnectionClosed() {
	if tr := r.Transfer(); tr != nil {
		tr.OnSinkClosed()
	}
}

// Cancel stops an active transfer.
func (r *Response) Cancel() {
	if tr := r.Transfer(); tr != nil {
		tr.Cancel()
	}
}

func (r *Response) begin(status int) error {
	if r.sealed {
		log.DefaultLogger.Errorf("response: headers already sent, dropping status %d", status)
		return ErrHeadersSent
	}
	if r.conn.IsClosed() {
		log.DefaultLogger.Warnf("Cannot write to socket. It's disconnected")
		return ErrDisconnected
	}
	if r.statusWritten {
		return nil
	}
	return r.WriteStatusLine(status, "", r.Major, r.Minor)
}

func (r *Response) endHeaders() error {
	if !r.statusWritten {
		return ErrNoStatusLine
	}
	if r.KeepAlive && r.Major == 1 && r.Minor == 0 && !r.closeConn && !r.headers.Has("Connection") {
		r.headers.Add("Connection", "keep-alive")
	}
	r.headers.VisitAll(func(name, value string) {
		r.head = append(r.head, name...)
		r.head = append(r.head, ": "...)
		r.head = append(r.head, value...)
		r.head = append(r.head, "\r\n"...)
	})
	r.head = append(r.head, "\r\n"...)
	r.sealed = true

	head := r.head
	r.head = nil
	return r.conn.Write(head)
}

func (r *Response) finish() {
	if r.done {
		return
	}
	r.done = true
	if r.onDone != nil {
		r.onDone(r)
	}
}

func closeSource(src io.Reader) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}
