package sites

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/web"
)

const ProxyTimeout = 30 * time.Second

var proxyTransport = &http.Transport{
	Proxy: nil,
	DialContext: (&net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	ResponseHeaderTimeout: ProxyTimeout,
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// newProxy forwards requests to target. The host's own cookies named in strip are not passed on. Failures to reach
// the target answer 502, timeouts 504.
func newProxy(site string, target *url.URL, strip ...string) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
			stripCookies(r.Out, strip)
		},
		Transport: proxyTransport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				// the client went away
				return
			}
			log.Warn().Err(err).Str("site", site).Str("target", target.String()).Str("path", r.URL.Path).
				Msg("proxy request failed")
			if isTimeout(err) {
				web.WriteError(w, fmt.Errorf("%w: the site did not answer in time", web.ErrTimeout))
				return
			}
			web.WriteError(w, fmt.Errorf("%w: the site is unreachable", web.ErrUpstream))
		},
	}
}

func stripCookies(r *http.Request, names []string) {
	if len(names) == 0 {
		return
	}
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	var kept []string
	for _, c := range cookies {
		stripped := false
		for _, n := range names {
			if c.Name == n {
				stripped = true
				break
			}
		}
		if !stripped {
			kept = append(kept, c.String())
		}
	}
	if len(kept) > 0 {
		r.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}
