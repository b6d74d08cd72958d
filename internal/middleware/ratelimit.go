package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/canvas/internal/app/metrics"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/httputil"
	"github.com/R3E-Network/canvas/internal/logging"
)

// Policy is a named request budget: Limit requests per Window per key.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	LoginPolicy    = Policy{Name: "login", Limit: 5, Window: 15 * time.Minute}
	RefreshPolicy  = Policy{Name: "refresh", Limit: 10, Window: time.Minute}
	RegisterPolicy = Policy{Name: "register", Limit: 2, Window: time.Minute}
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether the key may spend one request under policy.
type Limiter interface {
	Allow(ctx context.Context, policy Policy, key string) (Decision, error)
}

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(r *http.Request) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	window   time.Duration
}

// RateLimiter is an in-process token-bucket limiter. Each policy/key pair
// gets a bucket of Limit tokens refilled evenly over Window.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow implements Limiter.
func (rl *RateLimiter) Allow(_ context.Context, policy Policy, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	id := policy.Name + "|" + key
	entry, exists := rl.limiters[id]
	if !exists {
		every := policy.Window / time.Duration(max(policy.Limit, 1))
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(every), policy.Limit),
			window:  policy.Window,
		}
		rl.limiters[id] = entry
	}
	entry.lastSeen = now

	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Decision{RetryAfter: policy.Window}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

// Cleanup drops buckets idle for longer than their window, which are full
// again and indistinguishable from fresh ones. It returns how many were
// removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > entry.window {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimit turns a Limiter into per-route middleware.
type RateLimit struct {
	limiter Limiter
	logger  *logging.Logger
}

// NewRateLimit wraps limiter for use as middleware.
func NewRateLimit(limiter Limiter, logger *logging.Logger) *RateLimit {
	if logger == nil {
		logger = logging.NewDefault("ratelimit")
	}
	return &RateLimit{limiter: limiter, logger: logger}
}

// Handler limits requests by policy, keyed by keyFn. A limiter backend error
// lets the request through.
func (m *RateLimit) Handler(policy Policy, keyFn KeyFunc) mux.MiddlewareFunc {
	limit := strconv.Itoa(policy.Limit)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			w.Header().Set("X-RateLimit-Limit", limit)

			decision, err := m.limiter.Allow(r.Context(), policy, key)
			if err != nil {
				m.logger.WithContext(r.Context()).WithError(err).WithField("policy", policy.Name).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !decision.Allowed {
				metrics.RecordRateLimited(policy.Name)
				m.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
					"policy": policy.Name,
					"key":    key,
					"path":   r.URL.Path,
					"method": r.Method,
				})

				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(decision.RetryAfter)))
				httputil.WriteError(w, r, m.logger, apperrors.RateLimitExceeded(policy.Limit, policy.Window.String()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// TrustedProxies lists the peers whose forwarding headers are believed. A nil
// or empty set keys every request on the connection's remote address.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts IPs and CIDRs such as "10.0.0.0/8" or
// "127.0.0.1".
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			tp.nets = append(tp.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		tp.nets = append(tp.nets, n)
	}
	return tp, nil
}

func (tp *TrustedProxies) trusted(addr string) bool {
	if tp == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range tp.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the connection's remote address. When that peer is a
// trusted proxy, X-Forwarded-For is walked right to left and the first
// untrusted hop wins, then X-Real-IP.
func (tp *TrustedProxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !tp.trusted(peer) {
		return peer
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !tp.trusted(hop) {
				return hop
			}
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xr) != nil {
		return xr
	}
	return peer
}

// ByIP keys requests by client address.
func (tp *TrustedProxies) ByIP(r *http.Request) string {
	return "ip:" + tp.ClientIP(r)
}

// ByUser keys requests by the authenticated user, falling back to the client
// address.
func (tp *TrustedProxies) ByUser(r *http.Request) string {
	if u, ok := UserFrom(r.Context()); ok {
		return "user:" + u.ID
	}
	return tp.ByIP(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP is the remote address with no proxies trusted.
func ClientIP(r *http.Request) string {
	return (*TrustedProxies)(nil).ClientIP(r)
}

// ByIP keys requests by remote address.
func ByIP(r *http.Request) string {
	return (*TrustedProxies)(nil).ByIP(r)
}

// ByUser keys requests by user, falling back to remote address.
func ByUser(r *http.Request) string {
	return (*TrustedProxies)(nil).ByUser(r)
}
