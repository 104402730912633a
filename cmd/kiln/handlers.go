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

package main

import (
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"path"
	"path/filepath"

	"kiln/pkg/log"
	"kiln/pkg/protocol/http/v1"
	"kiln/pkg/server"
)

const defaultMime = "application/octet-stream"

type healthHandler struct {
	srv *server.Server
}

func (h healthHandler) ServeHTTP(req *v1.Request, resp *v1.Response) bool {
	if req.Path() != "/healthz" {
		return false
	}
	resp.WriteJSON(map[string]interface{}{
		"status":      "ok",
		"connections": h.srv.NumConnections(),
	}, v1.StatusOK)
	return true
}

// staticHandler streams the files under root
type staticHandler struct {
	root string
}

func newStaticHandler(root string) (*staticHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static root %s is not a directory", root)
	}
	return &staticHandler{root: abs}, nil
}

// resolve maps a request path into root, "" when nothing is served there
func (h *staticHandler) resolve(p string) string {
	name := filepath.Join(h.root, filepath.FromSlash(path.Clean("/"+p)))
	fi, err := os.Stat(name)
	if err != nil {
		return ""
	}
	if fi.IsDir() {
		name = filepath.Join(name, "index.html")
		if fi, err = os.Stat(name); err != nil || fi.IsDir() {
			return ""
		}
	}
	return name
}

func (h *staticHandler) ServeHTTP(req *v1.Request, resp *v1.Response) bool {
	if req.Method != "GET" {
		// HEAD would need a body-less WriteFile
		return false
	}
	name := h.resolve(req.Path())
	if name == "" {
		return false
	}
	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = defaultMime
	}
	if err := resp.WriteFile(name, mimeType, v1.StatusOK); err != nil {
		log.DefaultLogger.Debugf("static: %s: %v", name, err)
	}
	return true
}

// serveEcho writes back what it reads until the peer closes
func serveEcho(req *v1.Request, conn net.Conn) {
	n, err := io.Copy(conn, conn)
	log.DefaultLogger.Debugf("echo: %s done after %d bytes: %v", req.RemoteAddr, n, err)
}
