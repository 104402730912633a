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

import "strings"

type headerEntry struct {
	name  string
	value string
}

// HeaderTable is a header multimap. Names are compared case-insensitively,
// values keep their insertion order and duplicates are permitted.
type HeaderTable struct {
	entries []headerEntry
	index   map[string][]int
}

// Add appends a value for name.
func (h *HeaderTable) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	key := normalizeHeaderKey(name)
	h.index[key] = append(h.index[key], len(h.entries))
	h.entries = append(h.entries, headerEntry{name: name, value: value})
}

// Get returns the first value stored for name.
func (h *HeaderTable) Get(name string) (string, bool) {
	idx, ok := h.index[normalizeHeaderKey(name)]
	if !ok {
		return "", false
	}
	return h.entries[idx[0]].value, true
}

// Peek is Get without the presence flag.
func (h *HeaderTable) Peek(name string) string {
	v, _ := h.Get(name)
	return v
}

// Values returns every value of name in insertion order.
func (h *HeaderTable) Values(name string) []string {
	idx := h.index[normalizeHeaderKey(name)]
	if len(idx) == 0 {
		return nil
	}
	values := make([]string, len(idx))
	for i, j := range idx {
		values[i] = h.entries[j].value
	}
	return values
}

func (h *HeaderTable) Has(name string) bool {
	_, ok := h.index[normalizeHeaderKey(name)]
	return ok
}

// HasToken reports whether any comma separated element of the name header
// equals token, ignoring case.
func (h *HeaderTable) HasToken(name, token string) bool {
	for _, j := range h.index[normalizeHeaderKey(name)] {
		for _, elem := range strings.Split(h.entries[j].value, ",") {
			if strings.EqualFold(strings.TrimSpace(elem), token) {
				return true
			}
		}
	}
	return false
}

// Len returns the number of entries, duplicates included.
func (h *HeaderTable) Len() int {
	return len(h.entries)
}

// VisitAll calls f for each entry in insertion order with the original
// name casing.
func (h *HeaderTable) VisitAll(f func(name, value string)) {
	for _, e := range h.entries {
		f(e.name, e.value)
	}
}

func (h *HeaderTable) Reset() {
	h.entries = h.entries[:0]
	for k := range h.index {
		delete(h.index, k)
	}
}

func normalizeHeaderKey(name string) string {
	for i := 0; i < len(name); i++ {
		if c := name[i]; 'A' <= c && c <= 'Z' {
			return strings.ToLower(name)
		}
	}
	return name
}
