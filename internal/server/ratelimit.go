package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterEntry tracks a rate limiter and its last use time
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimit manages rate limiters per client IP address
type IPRateLimit struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex

	limit   rate.Limit
	burst   int
	trusted []netip.Prefix
	now     func() time.Time
}

// NewIPRateLimit allows each client perSecond requests with the given burst
func NewIPRateLimit(perSecond float64, burst int) *IPRateLimit {
	return &IPRateLimit{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// TrustProxies sets the reverse proxies whose forwarding headers are honoured
func (l *IPRateLimit) TrustProxies(prefixes []netip.Prefix) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trusted = append([]netip.Prefix(nil), prefixes...)
}

// ClientIP returns the key r is limited under
func (l *IPRateLimit) ClientIP(r *http.Request) string {
	l.mu.Lock()
	trusted := l.trusted
	l.mu.Unlock()
	return GetClientIP(r, trusted)
}

// Allow reports whether ip may make a request now
func (l *IPRateLimit) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.limiters[ip]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Cleanup removes limiters idle for longer than idle
func (l *IPRateLimit) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > idle {
			delete(l.limiters, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (l *IPRateLimit) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// GetClientIP returns the client address of r. X-Forwarded-For and X-Real-IP
// are only read when the peer is one of the trusted proxies; the forwarded
// chain is walked from the right and the first untrusted hop wins.
func GetClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !isTrusted(remote, trusted) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop, trusted) {
				return hop
			}
		}
		if first := strings.TrimSpace(hops[0]); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func isTrusted(host string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
