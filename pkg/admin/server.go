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

package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcrowley/go-metrics"

	"kiln/pkg/api/v2"
	"kiln/pkg/log"
)

const DefaultNamespace = "kiln"

// Server serves the metrics endpoint
type Server struct {
	config   v2.AdminConfig
	registry *prometheus.Registry
	srv      *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer exports registry, plus the go runtime metrics, on the metrics
// path of config.
func NewServer(config v2.AdminConfig, registry metrics.Registry) *Server {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(DefaultNamespace, registry))
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle(config.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return &Server{
		config:   config,
		registry: reg,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the admin address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.DefaultLogger.Infof("admin: metrics on http://%s%s", ln.Addr(), s.config.MetricsPath)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.DefaultLogger.Errorf("admin: serve failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Gatherer returns the prometheus registry served
func (s *Server) Gatherer() prometheus.Gatherer {
	return s.registry
}

func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
