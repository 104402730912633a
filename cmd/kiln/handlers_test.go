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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticResolve(t *testing.T) {
	dir, err := ioutil.TempDir("", "kiln-static")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	os.MkdirAll(filepath.Join(dir, "docs"), 0755)
	os.MkdirAll(filepath.Join(dir, "empty"), 0755)
	ioutil.WriteFile(filepath.Join(dir, "index.html"), []byte("home"), 0644)
	ioutil.WriteFile(filepath.Join(dir, "docs", "a.txt"), []byte("a"), 0644)

	h, err := newStaticHandler(dir)
	if err != nil {
		t.Fatal(err)
	}
	root := h.root
	for p, want := range map[string]string{
		"/":                   filepath.Join(root, "index.html"),
		"/docs/a.txt":         filepath.Join(root, "docs", "a.txt"),
		"/../../etc/passwd":   "",
		"/docs/../index.html": filepath.Join(root, "index.html"),
		"/empty":              "",
		"/missing":            "",
	} {
		if got := h.resolve(p); got != want {
			t.Errorf("Expect %q for %s but got %q", want, p, got)
		}
	}

	if _, err := newStaticHandler(filepath.Join(dir, "index.html")); err == nil {
		t.Error("Expect a file root to be rejected")
	}
}
