// Copyright 2025 Quantstamp, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net"
	"net/http"
	"sync"
)

// ipLimiter caps the number of in-flight requests per client source
type ipLimiter struct {
	mu       sync.Mutex
	inflight map[string]int
	max      int
}

func newIPLimiter(limit int) *ipLimiter {
	return &ipLimiter{
		inflight: make(map[string]int),
		max:      limit,
	}
}

// ipKeyFromRemoteAddr returns the bare address for IPv4 clients and the /64
// prefix for IPv6 clients. Unparseable addresses yield an empty key, which
// is exempt from limiting.
func ipKeyFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return ""
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String() + "/64"
}

func (l *ipLimiter) acquire(key string) bool {
	if key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[key] >= l.max {
		return false
	}
	l.inflight[key]++
	return true
}

func (l *ipLimiter) release(key string) {
	if key == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight[key]--
	if l.inflight[key] <= 0 {
		delete(l.inflight, key)
	}
}

func (l *ipLimiter) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[key]
}

func (s *Server) withIPLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ipKeyFromRemoteAddr(r.RemoteAddr)
		if !s.limiter.acquire(key) {
			s.logger.Warn(
				"too many concurrent requests",
				"client", key,
			)
			writeError(
				w,
				http.StatusTooManyRequests,
				"Too Many Requests",
				"Too many concurrent requests from this address.",
			)
			return
		}
		defer s.limiter.release(key)
		next.ServeHTTP(w, r)
	})
}
