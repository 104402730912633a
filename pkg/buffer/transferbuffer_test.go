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

package buffer

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestTransferBufferCursors(t *testing.T) {
	convey.Convey("transfer buffer cursors", t, func() {
		b := NewTransferBuffer(4096)
		convey.So(b.Cap(), convey.ShouldEqual, 4096)
		convey.So(b.Empty(), convey.ShouldBeTrue)

		n := copy(b.Free(), []byte("hello world"))
		b.Advance(n)
		convey.So(b.Len(), convey.ShouldEqual, 11)
		convey.So(string(b.Unread()), convey.ShouldEqual, "hello world")

		b.Consume(6)
		convey.So(string(b.Unread()), convey.ShouldEqual, "world")
		convey.So(len(b.Free()), convey.ShouldEqual, 4096-11)

		b.Consume(5)
		convey.So(b.Empty(), convey.ShouldBeTrue)

		b.Reset()
		convey.So(len(b.Free()), convey.ShouldEqual, 4096)

		convey.Convey("cursors never cross", func() {
			convey.So(func() { b.Consume(1) }, convey.ShouldPanic)
			convey.So(func() { b.Advance(4097) }, convey.ShouldPanic)
		})

		convey.Convey("release is only allowed once", func() {
			convey.So(b.Release(), convey.ShouldBeNil)
			convey.So(b.Cap(), convey.ShouldEqual, 0)
			convey.So(b.Release(), convey.ShouldEqual, ErrReleased)
		})
	})
}

func TestTransferBufferDefaultSize(t *testing.T) {
	b := NewTransferBuffer(0)
	defer b.Release()

	if b.Cap() != DefaultTransferSize {
		t.Errorf("Expect default capacity %d but got %d", DefaultTransferSize, b.Cap())
	}
}
