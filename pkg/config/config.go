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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kiln/pkg/api/v2"
	"kiln/pkg/buffer"
	"kiln/pkg/log"
	"kiln/pkg/network"
	"kiln/pkg/protocol/http/parser"
)

const (
	DefaultServerName      = "kiln"
	DefaultGracefulTimeout = 30 * time.Second
	DefaultIOWorkers       = 64
	DefaultMetricsPath     = "/metrics"
)

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

var (
	ErrNoListener      = errors.New("at least one listener is required")
	ErrUnknownFormat   = errors.New("unknown config format")
	ErrInvalidListener = errors.New("invalid listener config")
)

// KilnConfig is the content of a config file
type KilnConfig struct {
	Server v2.ServerConfig `json:"server" yaml:"server"`
}

// FormatOf picks the format from the file extension, json by default
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

// Load reads, defaults and validates the config file at path
func Load(path string) (*KilnConfig, error) {
	log.DefaultLogger.Infof("load config from: %s", path)
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c, err := Parse(content, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes, defaults and validates a config
func Parse(content []byte, format Format) (*KilnConfig, error) {
	c := &KilnConfig{}
	switch format {
	case JSON:
		if err := json.Unmarshal(content, c); err != nil {
			return nil, fmt.Errorf("json unmarshal config failed: %w", err)
		}
	case YAML:
		if err := yaml.Unmarshal(content, c); err != nil {
			return nil, fmt.Errorf("yaml unmarshal config failed: %w", err)
		}
	default:
		return nil, ErrUnknownFormat
	}

	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDefaults fills the unset fields
func (c *KilnConfig) SetDefaults() {
	sc := &c.Server
	if sc.ServerName == "" {
		sc.ServerName = DefaultServerName
	}
	if sc.DefaultLogLevel == "" {
		sc.DefaultLogLevel = log.INFO.String()
	}
	if sc.GracefulTimeout.Duration <= 0 {
		sc.GracefulTimeout.Duration = DefaultGracefulTimeout
	}
	if sc.ReadBufferSize <= 0 {
		sc.ReadBufferSize = network.DefaultBufferReadCapacity
	}
	if sc.TransferBufferSize <= 0 {
		sc.TransferBufferSize = buffer.DefaultTransferSize
	}
	if sc.MaxHeaderBytes <= 0 {
		sc.MaxHeaderBytes = parser.DefaultMaxHeaderBytes
	}
	if sc.IOWorkers <= 0 {
		sc.IOWorkers = DefaultIOWorkers
	}
	if sc.Admin.Address != "" && sc.Admin.MetricsPath == "" {
		sc.Admin.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks the listeners can be bound
func (c *KilnConfig) Validate() error {
	sc := &c.Server
	if len(sc.Listeners) == 0 {
		return ErrNoListener
	}
	names := make(map[string]bool)
	for i := range sc.Listeners {
		lc := &sc.Listeners[i]
		if _, err := ParseListenerConfig(lc); err != nil {
			return err
		}
		if lc.Name != "" {
			if names[lc.Name] {
				return fmt.Errorf("%w: duplicate listener name %s", ErrInvalidListener, lc.Name)
			}
			names[lc.Name] = true
		}
	}
	if sc.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative: %d", sc.MaxBodyBytes)
	}
	if sc.Admin.Address != "" {
		if _, err := net.ResolveTCPAddr("tcp", sc.Admin.Address); err != nil {
			return fmt.Errorf("admin address %s not valid: %w", sc.Admin.Address, err)
		}
		if !strings.HasPrefix(sc.Admin.MetricsPath, "/") {
			return fmt.Errorf("admin metrics path must start with /: %s", sc.Admin.MetricsPath)
		}
	}
	return nil
}

// Dump writes c in format
func Dump(c *KilnConfig, w io.Writer, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(c)
	}
	return ErrUnknownFormat
}
