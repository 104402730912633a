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
	"context"
	"net"
	"testing"
	"time"

	"kiln/pkg/api/v2"
)

type acceptRecorder struct {
	conns  chan net.Conn
	closed chan struct{}
}

func (r *acceptRecorder) OnAccept(rawc net.Conn) {
	r.conns <- rawc
}

func (r *acceptRecorder) OnClose() {
	close(r.closed)
}

func testListenerConfig(t *testing.T, address string, reusePort bool) *v2.Listener {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		t.Fatal(err)
	}
	return &v2.Listener{
		ListenerConfig: v2.ListenerConfig{
			Name:       "test",
			AddrConfig: address,
			ReusePort:  reusePort,
		},
		Addr: addr,
	}
}

func runListener(t *testing.T, l Listener) (*acceptRecorder, chan struct{}) {
	rec := &acceptRecorder{conns: make(chan net.Conn, 4), closed: make(chan struct{})}
	l.SetListenerCallbacks(rec)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		l.Start(context.Background())
	}()
	return rec, exited
}

func TestListenerAccept(t *testing.T) {
	for _, reuse := range []bool{false, true} {
		l := NewListener(testListenerConfig(t, "127.0.0.1:0", reuse))
		if err := l.Listen(); err != nil {
			t.Fatal(err)
		}
		port := l.Addr().(*net.TCPAddr).Port
		if port == 0 {
			t.Fatal("Expect a bound port")
		}

		rec, exited := runListener(t, l)
		client, err := net.Dial("tcp", l.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		select {
		case c := <-rec.conns:
			c.Close()
		case <-time.After(5 * time.Second):
			t.Fatal("connection was not accepted")
		}
		client.Close()

		if err := l.Close(context.Background()); err != nil {
			t.Errorf("Expect no close error but got %v", err)
		}
		<-rec.closed
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			t.Fatal("accept loop did not exit after close")
		}
	}
}

func TestListenerStop(t *testing.T) {
	l := NewListener(testListenerConfig(t, "127.0.0.1:0", false))
	if err := l.Listen(); err != nil {
		t.Fatal(err)
	}
	_, exited := runListener(t, l)
	defer l.Close(context.Background())

	if err := l.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop did not exit after stop")
	}
}

func TestListenerAddressInUse(t *testing.T) {
	first := NewListener(testListenerConfig(t, "127.0.0.1:0", false))
	if err := first.Listen(); err != nil {
		t.Fatal(err)
	}
	defer first.Close(context.Background())

	second := NewListener(testListenerConfig(t, first.Addr().String(), false))
	if err := second.Listen(); err == nil {
		second.Close(context.Background())
		t.Error("Expect bind to a used address to fail")
	}
}

func TestListenerInherit(t *testing.T) {
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	l := NewListener(&v2.Listener{
		ListenerConfig:  v2.ListenerConfig{Name: "inherited"},
		InheritListener: raw,
	})
	if err := l.Listen(); err != nil {
		t.Fatal(err)
	}
	if l.RawListener() != raw {
		t.Error("Expect the inherited listener to be used")
	}
	if l.Addr().String() != raw.Addr().String() {
		t.Errorf("Expect %s but got %s", raw.Addr(), l.Addr())
	}
	l.Close(context.Background())
}
