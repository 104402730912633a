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

package bootstrap

import (
	"context"
	"fmt"
	"time"

	"kiln/pkg/admin"
	"kiln/pkg/config"
	"kiln/pkg/log"
	"kiln/pkg/server"
)

// Kiln is a server built from a config file, with its admin exporter
type Kiln struct {
	config *config.KilnConfig
	server *server.Server
	admin  *admin.Server
}

// NewKiln sets the default logger up, then creates the server and binds
// its listeners.
func NewKiln(kc *config.KilnConfig) (*Kiln, error) {
	sc := config.ParseServerConfig(&kc.Server)

	if sc.LogPath != "" {
		logger, err := log.NewLogger(sc.LogPath, sc.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", sc.LogPath, err)
		}
		log.DefaultLogger = logger
	} else {
		log.DefaultLogger.SetLevel(sc.LogLevel)
	}

	srv := server.NewServer(sc)
	for i := range kc.Server.Listeners {
		if _, _, err := srv.AddListener(&kc.Server.Listeners[i]); err != nil {
			srv.Close()
			return nil, fmt.Errorf("add listener: %w", err)
		}
	}

	k := &Kiln{
		config: kc,
		server: srv,
	}
	if kc.Server.Admin.Address != "" {
		k.admin = admin.NewServer(kc.Server.Admin, srv.Metrics())
	}
	return k, nil
}

// Server returns the server, handlers are registered on it before Start
func (k *Kiln) Server() *server.Server {
	return k.server
}

// Admin returns the metrics exporter, nil when disabled
func (k *Kiln) Admin() *admin.Server {
	return k.admin
}

// Start serves until ctx is done or Stop is called
func (k *Kiln) Start(ctx context.Context) error {
	if k.admin != nil {
		if err := k.admin.Start(); err != nil {
			return fmt.Errorf("start admin: %w", err)
		}
	}
	return k.server.Serve(ctx)
}

// Stop closes the server, then the exporter
func (k *Kiln) Stop() error {
	err := k.server.Close()
	if k.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if aerr := k.admin.Close(ctx); aerr != nil && err == nil {
			err = aerr
		}
	}
	return err
}
