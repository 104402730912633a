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
	"github.com/rcrowley/go-metrics"

	"kiln/pkg/network"
)

// metric names, exported through the admin collector
const (
	MetricConnectionsAccepted = "connections.accepted"
	MetricConnectionsRejected = "connections.rejected"
	MetricConnectionsActive   = "connections.active"
	MetricRequests            = "requests"
	MetricParseErrors         = "requests.parse_errors"
	MetricHandlerPanics       = "requests.handler_panics"
	MetricResponseTime        = "responses.time"
	MetricUpgrades            = "upgrades.accepted"
	MetricUpgradesRejected    = "upgrades.rejected"
	MetricReadBytes           = "network.read_bytes"
	MetricWriteBytes          = "network.write_bytes"
)

type serverStats struct {
	ConnectionsAccepted metrics.Counter
	ConnectionsRejected metrics.Counter
	ConnectionsActive   metrics.Gauge
	Requests            metrics.Meter
	ParseErrors         metrics.Counter
	HandlerPanics       metrics.Counter
	ResponseTime        metrics.Timer
	Upgrades            metrics.Counter
	UpgradesRejected    metrics.Counter

	conn *network.ConnectionStats
}

func newServerStats(r metrics.Registry) *serverStats {
	return &serverStats{
		ConnectionsAccepted: metrics.GetOrRegisterCounter(MetricConnectionsAccepted, r),
		ConnectionsRejected: metrics.GetOrRegisterCounter(MetricConnectionsRejected, r),
		ConnectionsActive:   metrics.GetOrRegisterGauge(MetricConnectionsActive, r),
		Requests:            metrics.GetOrRegisterMeter(MetricRequests, r),
		ParseErrors:         metrics.GetOrRegisterCounter(MetricParseErrors, r),
		HandlerPanics:       metrics.GetOrRegisterCounter(MetricHandlerPanics, r),
		ResponseTime:        metrics.GetOrRegisterTimer(MetricResponseTime, r),
		Upgrades:            metrics.GetOrRegisterCounter(MetricUpgrades, r),
		UpgradesRejected:    metrics.GetOrRegisterCounter(MetricUpgradesRejected, r),
		conn: &network.ConnectionStats{
			ReadTotal:  metrics.GetOrRegisterCounter(MetricReadBytes, r),
			WriteTotal: metrics.GetOrRegisterCounter(MetricWriteBytes, r),
		},
	}
}
