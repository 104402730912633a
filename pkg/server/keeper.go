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
	"context"
	"os"
	"os/signal"
	stdsync "sync"
	"syscall"

	"kiln/pkg/log"
)

var defaultKeeper = &keeper{}

// keeper runs the shutdown callbacks of the process once
type keeper struct {
	mu        stdsync.Mutex
	once      stdsync.Once
	callbacks []func() error
}

func (k *keeper) add(cb func() error) {
	k.mu.Lock()
	k.callbacks = append(k.callbacks, cb)
	k.mu.Unlock()
}

func (k *keeper) execute(signame string) (exitCode int) {
	k.once.Do(func() {
		k.mu.Lock()
		callbacks := k.callbacks
		k.mu.Unlock()

		var errs []error
		for _, cb := range callbacks {
			if err := cb(); err != nil {
				errs = append(errs, err)
			}
		}

		if len(errs) > 0 {
			for _, err := range errs {
				log.DefaultLogger.Errorf("server shutdown on %s with err: %v", signame, err)
			}
			exitCode = 4
		}
	})
	return
}

// OnShutdown registers a callback run by ExecuteShutdownCallbacks
func OnShutdown(cb func() error) {
	defaultKeeper.add(cb)
}

// ExecuteShutdownCallbacks runs the registered callbacks once, the exit
// code is 4 when one of them failed.
func ExecuteShutdownCallbacks(signame string) int {
	return defaultKeeper.execute(signame)
}

// WaitSignal blocks until SIGINT or SIGTERM arrives or ctx is done, nil is
// returned then. SIGHUP reopens the log file.
func WaitSignal(ctx context.Context) os.Signal {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigchan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigchan:
			log.DefaultLogger.Infof("signal received: %s", sig)
			if sig == syscall.SIGHUP {
				if err := log.DefaultLogger.Reopen(); err != nil {
					log.DefaultLogger.Errorf("reopen log failed: %v", err)
				}
				continue
			}
			return sig
		}
	}
}
