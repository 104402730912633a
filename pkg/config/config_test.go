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
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"kiln/pkg/log"
)

const yamlConfig = `
server:
  server_name: edge
  default_log_level: debug
  graceful_timeout: 5s
  transfer_buffer_size: 262144
  listeners:
    - name: public
      address: 127.0.0.1:8080
      reuse_port: true
      accept_rate: 20
      accept_burst: 40
  admin:
    address: 127.0.0.1:9100
`

const jsonConfig = `{
  "server": {
    "graceful_timeout": 10,
    "max_body_bytes": 1048576,
    "listeners": [{"address": "0.0.0.0:8080"}]
  }
}`

func TestParse(t *testing.T) {
	convey.Convey("Given config files", t, func() {
		convey.Convey("A yaml file is decoded with its durations", func() {
			c, err := Parse([]byte(yamlConfig), YAML)
			convey.So(err, convey.ShouldBeNil)
			sc := c.Server
			convey.So(sc.ServerName, convey.ShouldEqual, "edge")
			convey.So(sc.GracefulTimeout.Duration, convey.ShouldEqual, 5*time.Second)
			convey.So(sc.TransferBufferSize, convey.ShouldEqual, 262144)
			convey.So(sc.Listeners[0].ReusePort, convey.ShouldBeTrue)
			convey.So(sc.Listeners[0].AcceptBurst, convey.ShouldEqual, 40)
			convey.So(sc.Admin.MetricsPath, convey.ShouldEqual, DefaultMetricsPath)
			convey.So(ParseLogLevel(sc.DefaultLogLevel), convey.ShouldEqual, log.DEBUG)
		})

		convey.Convey("A json file gets the defaults", func() {
			c, err := Parse([]byte(jsonConfig), JSON)
			convey.So(err, convey.ShouldBeNil)
			sc := c.Server
			convey.So(sc.ServerName, convey.ShouldEqual, DefaultServerName)
			convey.So(sc.GracefulTimeout.Duration, convey.ShouldEqual, 10*time.Second)
			convey.So(sc.ReadBufferSize, convey.ShouldEqual, 1<<16)
			convey.So(sc.TransferBufferSize, convey.ShouldEqual, 1<<20)
			convey.So(sc.MaxHeaderBytes, convey.ShouldEqual, 80*1024)
			convey.So(sc.MaxBodyBytes, convey.ShouldEqual, int64(1<<20))
			convey.So(sc.IOWorkers, convey.ShouldEqual, DefaultIOWorkers)
			convey.So(sc.Admin.MetricsPath, convey.ShouldEqual, "")
		})

		convey.Convey("Invalid configs are rejected", func() {
			cases := []struct {
				content string
				format  Format
				err     error
			}{
				{`{"server": {}}`, JSON, ErrNoListener},
				{`{"server": {"listeners": [{"name": "x"}]}}`, JSON, ErrInvalidListener},
				{`{"server": {"listeners": [{"address": "nowhere:port"}]}}`, JSON, ErrInvalidListener},
				{`{"server": {"listeners": [{"name": "a", "address": ":1"}, {"name": "a", "address": ":2"}]}}`, JSON, ErrInvalidListener},
				{`{"server": {"listeners": [{"address": ":1", "accept_rate": -1}]}}`, JSON, ErrInvalidListener},
				{`server: [`, YAML, nil},
				{`{}`, Format("toml"), ErrUnknownFormat},
			}
			for _, tc := range cases {
				_, err := Parse([]byte(tc.content), tc.format)
				convey.So(err, convey.ShouldNotBeNil)
				if tc.err != nil {
					convey.So(errors.Is(err, tc.err), convey.ShouldBeTrue)
				}
			}
		})
	})
}

func TestLoadAndDump(t *testing.T) {
	dir, err := ioutil.TempDir("", "kiln-config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "kiln.yml")
	if err := ioutil.WriteFile(path, []byte(yamlConfig), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	for _, format := range []Format{JSON, YAML} {
		var out bytes.Buffer
		if err := Dump(c, &out, format); err != nil {
			t.Fatal(err)
		}
		again, err := Parse(out.Bytes(), format)
		if err != nil {
			t.Fatalf("Expect dumped %s to parse but got %v", format, err)
		}
		if again.Server.GracefulTimeout != c.Server.GracefulTimeout {
			t.Errorf("Expect %v but got %v", c.Server.GracefulTimeout, again.Server.GracefulTimeout)
		}
		if again.Server.Listeners[0] != c.Server.Listeners[0] {
			t.Errorf("Expect %+v but got %+v", c.Server.Listeners[0], again.Server.Listeners[0])
		}
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expect a missing file to fail")
	}
}

func TestParseServerConfig(t *testing.T) {
	c, err := Parse([]byte(yamlConfig), YAML)
	if err != nil {
		t.Fatal(err)
	}
	sc := ParseServerConfig(&c.Server)
	if sc.ServerName != "edge" || sc.LogLevel != log.DEBUG || sc.GracefulTimeout != 5*time.Second {
		t.Errorf("Expect server config from file but got %+v", sc)
	}

	l, err := ParseListenerConfig(&c.Server.Listeners[0])
	if err != nil {
		t.Fatal(err)
	}
	if l.Addr.String() != "127.0.0.1:8080" {
		t.Errorf("Expect 127.0.0.1:8080 but got %s", l.Addr)
	}
}

func TestFormatOf(t *testing.T) {
	for path, want := range map[string]Format{
		"kiln.yaml": YAML,
		"kiln.YML":  YAML,
		"kiln.json": JSON,
		"kiln":      JSON,
	} {
		if got := FormatOf(path); got != want {
			t.Errorf("Expect %s for %s but got %s", want, path, got)
		}
	}
}
