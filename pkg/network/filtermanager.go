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

package network

type filterManager struct {
	downstreamFilters []*activeReadFilter
	conn              *connection
}

func (fm *filterManager) AddReadFilter(rf ReadFilter) {
	newArf := &activeReadFilter{
		filter:        rf,
		filterManager: fm,
	}

	rf.InitializeReadFilterCallbacks(newArf)
	fm.downstreamFilters = append(fm.downstreamFilters, newArf)
}

func (fm *filterManager) ListReadFilter() []ReadFilter {
	var readFilters []ReadFilter

	for _, uf := range fm.downstreamFilters {
		readFilters = append(readFilters, uf.filter)
	}

	return readFilters
}

func (fm *filterManager) InitializeReadFilters() bool {
	if len(fm.downstreamFilters) == 0 {
		return false
	}

	fm.onContinueReading(nil)
	return true
}

// onContinueReading runs the filters after filter over the current read
// buffer. The read is released once every filter let it pass.
func (fm *filterManager) onContinueReading(filter *activeReadFilter) {
	var index int
	var uf *activeReadFilter

	if filter != nil {
		index = filter.index + 1
	}

	for ; index < len(fm.downstreamFilters); index++ {
		if fm.conn.IsClosed() {
			return
		}
		uf = fm.downstreamFilters[index]
		uf.index = index

		if !uf.initialized {
			uf.initialized = true

			status := uf.filter.OnNewConnection()

			if status == Stop {
				return
			}
		}

		buf := fm.conn.GetReadBuffer()

		if len(buf) > 0 {
			status := uf.filter.OnData(buf)

			if status == Stop {
				return
			}
		}
	}

	fm.conn.releaseRead()
}

func (fm *filterManager) OnRead() {
	fm.onContinueReading(nil)
}

// as a ReadFilterCallbacks
type activeReadFilter struct {
	index         int
	filter        ReadFilter
	filterManager *filterManager
	initialized   bool
}

func (arf *activeReadFilter) Connection() Connection {
	return arf.filterManager.conn
}

func (arf *activeReadFilter) ContinueReading() {
	arf.filterManager.onContinueReading(arf)
}

func newFilterManager(conn *connection) *filterManager {
	return &filterManager{
		conn:              conn,
		downstreamFilters: make([]*activeReadFilter, 0, 4),
	}
}
