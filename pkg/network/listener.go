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
	"errors"
	"net"
	"runtime/debug"
	"time"

	reuseport "github.com/kavu/go_reuseport"

	"kiln/pkg/api/v2"
	"kiln/pkg/log"
)

const maxAcceptBackoff = time.Second

// listener impl based on golang net package
type listener struct {
	name         string
	localAddress net.Addr
	bindToPort   bool
	reusePort    bool
	listenerTag  uint64
	cb           ListenerEventListener
	rawl         net.Listener
	config       *v2.Listener
}

func NewListener(lc *v2.Listener) Listener {
	l := &listener{
		name:         lc.Name,
		localAddress: lc.Addr,
		bindToPort:   true,
		reusePort:    lc.ReusePort,
		listenerTag:  lc.ListenerTag,
		config:       lc,
	}

	if lc.InheritListener != nil {
		// adopt a listener bound by the caller
		l.rawl = lc.InheritListener
		l.bindToPort = false
		if l.localAddress == nil {
			l.localAddress = lc.InheritListener.Addr()
		}
	}
	return l
}

func (l *listener) Config() *v2.Listener {
	return l.config
}

func (l *listener) Name() string {
	return l.name
}

func (l *listener) Addr() net.Addr {
	return l.localAddress
}

func (l *listener) Listen() error {
	if !l.bindToPort || l.rawl != nil {
		return nil
	}
	if l.localAddress == nil {
		return errors.New("listener " + l.name + " has no address")
	}

	var (
		rawl net.Listener
		err  error
	)
	if l.reusePort {
		rawl, err = reuseport.Listen("tcp", l.localAddress.String())
	} else {
		rawl, err = net.Listen("tcp", l.localAddress.String())
	}
	if err != nil {
		return err
	}

	l.rawl = rawl
	l.localAddress = rawl.Addr()
	return nil
}

func (l *listener) Start(lctx context.Context) {
	if l.rawl == nil {
		if err := l.Listen(); err != nil {
			log.DefaultLogger.Errorf("listener %s listen failed: %v", l.name, err)
			return
		}
	}

	var backoff time.Duration
	for {
		rawc, err := l.rawl.Accept()
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				log.DefaultLogger.Infof("listener %s stop accepting connections by deadline", l.name)
				return
			}
			if errors.Is(err, net.ErrClosed) {
				log.DefaultLogger.Infof("listener %s closed: %s", l.name, l.Addr())
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			log.DefaultLogger.Errorf("listener %s accept error: %v, retrying in %v", l.name, err, backoff)
			select {
			case <-lctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		l.accept(rawc)
	}
}

func (l *listener) accept(rawc net.Conn) {
	defer func() {
		if p := recover(); p != nil {
			log.DefaultLogger.Errorf("listener %s panic on accept: %v\n%s", l.name, p, debug.Stack())
			rawc.Close()
		}
	}()

	if l.cb == nil {
		rawc.Close()
		return
	}
	l.cb.OnAccept(rawc)
}

func (l *listener) Stop() error {
	if l.rawl == nil {
		return nil
	}
	if dl, ok := l.rawl.(interface{ SetDeadline(time.Time) error }); ok {
		return dl.SetDeadline(time.Now())
	}
	return l.rawl.Close()
}

func (l *listener) ListenerTag() uint64 {
	return l.listenerTag
}

func (l *listener) SetListenerTag(tag uint64) {
	l.listenerTag = tag
}

func (l *listener) RawListener() net.Listener {
	return l.rawl
}

func (l *listener) SetListenerCallbacks(cb ListenerEventListener) {
	l.cb = cb
}

func (l *listener) GetListenerCallbacks() ListenerEventListener {
	return l.cb
}

func (l *listener) Close(lctx context.Context) error {
	if l.cb != nil {
		l.cb.OnClose()
	}
	if l.rawl == nil {
		return nil
	}
	return l.rawl.Close()
}
