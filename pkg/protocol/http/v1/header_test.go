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

package v1

import (
	"reflect"
	"testing"
)

func TestHeaderTable(t *testing.T) {
	var h HeaderTable
	h.Add("Accept", "text/html")
	h.Add("X-Trace", "1")
	h.Add("accept", "*/*")

	if v, ok := h.Get("ACCEPT"); !ok || v != "text/html" {
		t.Errorf("Expect text/html but got %q %v", v, ok)
	}
	if got := h.Values("Accept"); !reflect.DeepEqual(got, []string{"text/html", "*/*"}) {
		t.Errorf("Expect values in insertion order but got %v", got)
	}
	if h.Len() != 3 {
		t.Errorf("Expect 3 entries but got %d", h.Len())
	}

	var names []string
	h.VisitAll(func(name, value string) { names = append(names, name) })
	if !reflect.DeepEqual(names, []string{"Accept", "X-Trace", "accept"}) {
		t.Errorf("Expect original casing but got %v", names)
	}

	h.Reset()
	if h.Has("accept") || h.Len() != 0 || h.Values("x-trace") != nil {
		t.Error("Expect an empty table after Reset")
	}
}
