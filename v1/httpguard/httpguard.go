// Package httpguard exposes the firewall and the rate limiter as
// net/http middleware, usable directly or with chi's Router.Use.
//
//	r := chi.NewRouter()
//	r.Use(httpguard.Firewall(c, "login", 10, httpguard.WithKey(httpguard.ClientIP)))
//	r.Use(httpguard.Concurrency(limiter))
//
// Store failures answer 500; denials answer 429 (firewall) or 503
// (concurrency limiter).
package httpguard

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mirkobrombin/go-coord/v1/client"
	"github.com/mirkobrombin/go-coord/v1/firewall"
	"github.com/mirkobrombin/go-coord/v1/ratelimit"
)

// KeyFunc extracts the part of the request a firewall counts hits for. An
// empty result skips the check.
type KeyFunc func(*http.Request) string

// ClientIP keys requests by the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Header keys requests by the value of the named header.
func Header(name string) KeyFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(name))
	}
}

// Option configures the firewall middleware.
type Option func(*guard)

// WithKey sets the request dimension; defaults to ClientIP.
func WithKey(fn KeyFunc) Option {
	return func(g *guard) { g.key = fn }
}

// WithFirewallOptions forwards options to every firewall built by the
// middleware.
func WithFirewallOptions(opts ...firewall.Option) Option {
	return func(g *guard) { g.fwOpts = append(g.fwOpts, opts...) }
}

type guard struct {
	c      *client.Client
	name   string
	limit  int64
	key    KeyFunc
	fwOpts []firewall.Option
}

// Firewall returns middleware accepting limit requests per window for each
// distinct key, the window being configured with firewall.WithExpiry.
func Firewall(c *client.Client, name string, limit int64, opts ...Option) func(http.Handler) http.Handler {
	g := &guard{c: c, name: name, limit: limit, key: ClientIP}
	for _, opt := range opts {
		opt(g)
	}
	return g.handler
}

func (g *guard) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := g.key(r)
		if k == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		fw, err := firewall.New(g.c, g.name+g.c.Namespace().Separator()+k, g.limit, g.fwOpts...)
		if err != nil {
			g.fail(w, err)
			return
		}
		ok, err := fw.Hit(ctx)
		if err != nil {
			g.fail(w, err)
			return
		}
		w.Header().Set("RateLimit-Limit", strconv.FormatInt(g.limit, 10))
		if !ok {
			if rem, err := fw.Remaining(ctx); err == nil && rem > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(rem.Seconds()+0.5)))
			}
			http.Error(w, fmt.Sprintf("Too many requests: %d per window", g.limit), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *guard) fail(w http.ResponseWriter, err error) {
	g.c.Logger().Error("coord: firewall check failed", "name", g.name, "error", err)
	http.Error(w, "Firewall check failed", http.StatusInternalServerError)
}

// Concurrency returns middleware holding a slot of l for the duration of
// each request.
func Concurrency(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			served := false
			err := ratelimit.Do(r.Context(), l, func(ctx context.Context) error {
				served = true
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			switch {
			case served:
				// A failed release is logged by ratelimit.Do; the response is already out.
			case stdErrors.Is(err, ratelimit.ErrLimitExceeded):
				http.Error(w, "Server busy", http.StatusServiceUnavailable)
			case err != nil:
				http.Error(w, "Limiter check failed", http.StatusInternalServerError)
			}
		})
	}
}
