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

package config

import (
	"fmt"
	"net"

	"kiln/pkg/api/v2"
	"kiln/pkg/log"
	"kiln/pkg/server"
)

// ParseServerConfig
func ParseServerConfig(c *v2.ServerConfig) *server.Config {
	return &server.Config{
		ServerName:         c.ServerName,
		LogPath:            c.DefaultLogPath,
		LogLevel:           ParseLogLevel(c.DefaultLogLevel),
		GracefulTimeout:    c.GracefulTimeout.Duration,
		ReadBufferSize:     c.ReadBufferSize,
		TransferBufferSize: c.TransferBufferSize,
		MaxHeaderBytes:     c.MaxHeaderBytes,
		MaxBodyBytes:       c.MaxBodyBytes,
		IOWorkers:          c.IOWorkers,
	}
}

// ParseLogLevel maps a level name, INFO when unknown
func ParseLogLevel(level string) log.Level {
	return log.ParseLevel(level)
}

// ParseListenerConfig resolves the address of lc
func ParseListenerConfig(lc *v2.ListenerConfig) (*v2.Listener, error) {
	if lc.AddrConfig == "" {
		return nil, fmt.Errorf("%w: [address] is required", ErrInvalidListener)
	}
	addr, err := net.ResolveTCPAddr("tcp", lc.AddrConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: [address] not valid: %s", ErrInvalidListener, lc.AddrConfig)
	}
	if lc.AcceptRate < 0 || lc.AcceptBurst < 0 {
		return nil, fmt.Errorf("%w: negative accept rate on %s", ErrInvalidListener, lc.AddrConfig)
	}

	return &v2.Listener{
		ListenerConfig: *lc,
		Addr:           addr,
	}, nil
}
