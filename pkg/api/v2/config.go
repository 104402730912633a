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

package v2

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig for making up server
type ServerConfig struct {
	// default logger
	ServerName      string `json:"server_name" yaml:"server_name"`
	DefaultLogPath  string `json:"default_log_path,omitempty" yaml:"default_log_path,omitempty"`
	DefaultLogLevel string `json:"default_log_level,omitempty" yaml:"default_log_level,omitempty"`

	// graceful shutdown config
	GracefulTimeout DurationConfig `json:"graceful_timeout" yaml:"graceful_timeout"`

	// connection and body transfer sizes
	ReadBufferSize     int   `json:"read_buffer_size,omitempty" yaml:"read_buffer_size,omitempty"`
	TransferBufferSize int   `json:"transfer_buffer_size,omitempty" yaml:"transfer_buffer_size,omitempty"`
	MaxHeaderBytes     int   `json:"max_header_bytes,omitempty" yaml:"max_header_bytes,omitempty"`
	MaxBodyBytes       int64 `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`

	// workers running blocking body reads
	IOWorkers int `json:"io_workers,omitempty" yaml:"io_workers,omitempty"`

	Listeners []ListenerConfig `json:"listeners,omitempty" yaml:"listeners,omitempty"`
	Admin     AdminConfig      `json:"admin,omitempty" yaml:"admin,omitempty"`
}

type ListenerConfig struct {
	Name       string `json:"name" yaml:"name"`
	AddrConfig string `json:"address" yaml:"address"`
	ReusePort  bool   `json:"reuse_port,omitempty" yaml:"reuse_port,omitempty"`

	// accepted connections per second and burst for one remote ip, 0 is unlimited
	AcceptRate  float64 `json:"accept_rate,omitempty" yaml:"accept_rate,omitempty"`
	AcceptBurst int     `json:"accept_burst,omitempty" yaml:"accept_burst,omitempty"`
}

// Listener contains the listener's information
type Listener struct {
	ListenerConfig
	Addr            net.Addr     `json:"-" yaml:"-"`
	ListenerTag     uint64       `json:"-" yaml:"-"`
	InheritListener net.Listener `json:"-" yaml:"-"`
}

// AdminConfig is the metrics exporter, disabled without an address
type AdminConfig struct {
	Address     string `json:"address,omitempty" yaml:"address,omitempty"`
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty"`
}

var ErrInvalidDuration = errors.New("invalid duration")

// DurationConfig accepts "30s" style strings or a number of seconds
type DurationConfig struct {
	time.Duration
}

func (d DurationConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DurationConfig) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d DurationConfig) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *DurationConfig) UnmarshalYAML(value *yaml.Node) error {
	var v interface{}
	if err := value.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *DurationConfig) set(v interface{}) error {
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case int:
		d.Duration = time.Duration(value) * time.Second
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = dur
	case nil:
		d.Duration = 0
	default:
		return ErrInvalidDuration
	}
	return nil
}
