package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/utils"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

var rejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fedhost_rate_limited_total",
	Help: "Requests rejected by a rate limit.",
}, []string{"endpoint"})

// Key identifies who a request is counted for. It runs before authentication, so credentials are not verified:
// a bearer token is keyed by its hash, a logged in session by its user, and anything else by source address.
func Key(r *http.Request, strict bool) string {
	if !strict {
		if token, ok := web.BearerToken(r); ok {
			return "token:" + utils.HashToken(token)[:32]
		}
		if a, ok := web.GetAccount(r.Context()); ok {
			return "user:" + strconv.FormatInt(a.UserID, 10)
		}
	}
	return "ip:" + SourceAddress(r)
}

// SourceAddress is the remote address without its port.
func SourceAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces p on endpoint. Errors of the limiter itself let the request through.
func Middleware(l Limiter, endpoint string, p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !p.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Hit(r.Context(), Key(r, p.Strict), endpoint, p)
			if err != nil {
				log.Warn().Err(err).Str("endpoint", endpoint).Msg("rate limiter failed, letting request through")
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				rejected.WithLabelValues(endpoint).Inc()
				h.Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
				web.WriteError(w, fmt.Errorf("%w: at most %d requests per %s", web.ErrRateLimited, d.Limit, p.Window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
