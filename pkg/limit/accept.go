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
	"errors"
	"net"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var ErrInvalidRate = errors.New("accept rate must not be negative, and burst be positive")

// AcceptLimiter keeps one token bucket per remote ip. Buckets of quiet
// peers expire.
type AcceptLimiter struct {
	ratePerSecond float64
	burst         int

	tokenBuckets *gocache.Cache
	mutex        sync.Mutex
}

// NewAcceptLimiter allows ratePerSecond accepts per remote ip with bursts
// of burst connections. burst <= 0 selects a burst of ceil(ratePerSecond).
func NewAcceptLimiter(ratePerSecond float64, burst int) (*AcceptLimiter, error) {
	if ratePerSecond < 0 {
		return nil, ErrInvalidRate
	}
	if burst <= 0 {
		burst = int(ratePerSecond)
		if float64(burst) < ratePerSecond {
			burst++
		}
	}
	if burst <= 0 {
		return nil, ErrInvalidRate
	}

	return &AcceptLimiter{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		tokenBuckets:  gocache.New(DefaultTokenBucketTTL, CleanupTokenBucketInterval),
	}, nil
}

// TryAcquire takes a token of the bucket of key
func (l *AcceptLimiter) TryAcquire(key interface{}) bool {
	strKey, ok := key.(string)
	if !ok {
		return false
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	v, found := l.tokenBuckets.Get(strKey)
	if !found {
		v = rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)
	}
	// refresh the ttl of busy peers
	l.tokenBuckets.Set(strKey, v, gocache.DefaultExpiration)
	return v.(*rate.Limiter).Allow()
}

// AllowConn reports whether a connection from addr may be served
func (l *AcceptLimiter) AllowConn(addr net.Addr) bool {
	if addr == nil {
		return l.TryAcquire("")
	}
	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return l.TryAcquire(host)
}

// Len returns the number of tracked peers
func (l *AcceptLimiter) Len() int {
	return l.tokenBuckets.ItemCount()
}
