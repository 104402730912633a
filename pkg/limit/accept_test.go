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

package limit

import (
	"net"
	"testing"
	"time"
)

func TestAcceptLimiterInvalid(t *testing.T) {
	if _, err := NewAcceptLimiter(-1, 1); err != ErrInvalidRate {
		t.Errorf("Expect %v but got %v", ErrInvalidRate, err)
	}
	if _, err := NewAcceptLimiter(0, 0); err != ErrInvalidRate {
		t.Errorf("Expect %v but got %v", ErrInvalidRate, err)
	}
}

func TestAcceptLimiterTryAcquire(t *testing.T) {
	limiter, err := NewAcceptLimiter(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !limiter.TryAcquire("10.0.0.1") {
		t.Error("Expect first accept to pass")
	}
	if !limiter.TryAcquire("10.0.0.2") {
		t.Error("Expect other peers to have their own bucket")
	}
	if limiter.TryAcquire("10.0.0.1") {
		t.Error("Expect burst to be rejected")
	}
	if limiter.TryAcquire(42) {
		t.Error("Expect non string keys to be rejected")
	}

	time.Sleep(time.Second)
	if !limiter.TryAcquire("10.0.0.1") {
		t.Error("Expect bucket to refill")
	}
	if limiter.Len() != 2 {
		t.Errorf("Expect 2 tracked peers but got %d", limiter.Len())
	}
}

func TestAcceptLimiterAllowConn(t *testing.T) {
	limiter, err := NewAcceptLimiter(0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	a := &net.TCPAddr{IP: net.ParseIP("192.168.1.7"), Port: 40000}
	b := &net.TCPAddr{IP: net.ParseIP("192.168.1.7"), Port: 40001}
	if !limiter.AllowConn(a) {
		t.Error("Expect first connection to pass")
	}
	if limiter.AllowConn(b) {
		t.Error("Expect ports of one ip to share a bucket")
	}
}
