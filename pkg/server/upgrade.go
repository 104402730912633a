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

package server

import (
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	stdsync "sync"

	"kiln/pkg/log"
	"kiln/pkg/network"
	"kiln/pkg/protocol/http/v1"
)

var ErrInvalidUpgrade = errors.New("upgrade handler needs a protocol name and a handler")

// upgradeDispatcher maps protocol names, lower cased, to their handlers
type upgradeDispatcher struct {
	mu       stdsync.RWMutex
	handlers map[string]UpgradeHandler
}

func newUpgradeDispatcher() *upgradeDispatcher {
	return &upgradeDispatcher{handlers: make(map[string]UpgradeHandler)}
}

func (d *upgradeDispatcher) register(protocol string, h UpgradeHandler) error {
	name := strings.ToLower(strings.TrimSpace(protocol))
	if name == "" || h == nil {
		return ErrInvalidUpgrade
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[name]; ok {
		return fmt.Errorf("upgrade handler for %s already registered", name)
	}
	d.handlers[name] = h
	return nil
}

// lookup returns the handler of the first offered protocol which has one.
// Offers may carry a version, "websocket/13".
func (d *upgradeDispatcher) lookup(offer string) (UpgradeHandler, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, p := range strings.Split(offer, ",") {
		name := strings.ToLower(strings.TrimSpace(p))
		if name == "" {
			continue
		}
		if h, ok := d.handlers[name]; ok {
			return h, name
		}
		if i := strings.IndexByte(name, '/'); i > 0 {
			if h, ok := d.handlers[name[:i]]; ok {
				return h, name[:i]
			}
		}
	}
	return nil, ""
}

// dispatch hands the connection of s over to the upgrade handler, with the
// bytes read past the header block. Without a handler the connection is
// closed once earlier answers are flushed, nothing is written for req.
func (d *upgradeDispatcher) dispatch(s *session, req *v1.Request, rollback []byte) {
	stats := s.srv.stats
	offer := req.Upgrade()

	h, name := d.lookup(offer)
	if h == nil {
		stats.UpgradesRejected.Inc(1)
		log.DefaultLogger.Warnf("connection %d: upgrade not supported: %q", s.conn.ID(), offer)
		s.conn.Close(network.FlushWrite, network.LocalClose)
		return
	}

	raw, err := s.conn.Detach(rollback)
	if err != nil {
		log.DefaultLogger.Errorf("connection %d: upgrade to %s failed: %v", s.conn.ID(), name, err)
		s.conn.Close(network.FlushWrite, network.LocalClose)
		return
	}
	stats.Upgrades.Inc(1)
	s.detached()
	log.DefaultLogger.Debugf("connection %d: upgraded to %s with %d bytes read ahead", s.conn.ID(), name, len(rollback))

	go serveUpgrade(h, req, raw)
}

func serveUpgrade(h UpgradeHandler, req *v1.Request, conn net.Conn) {
	defer func() {
		if p := recover(); p != nil {
			log.DefaultLogger.Errorf("upgrade handler panicked: %v\n%s", p, debug.Stack())
		}
		conn.Close()
	}()
	h.ServeUpgrade(req, conn)
}
