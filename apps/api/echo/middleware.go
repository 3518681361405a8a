package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/trezcool/homeroom/core/tenancy"
)

var authorizationDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "homeroom",
	Subsystem: "api",
	Name:      "authorization_denials_total",
	Help:      "Requests refused by the authorization pipeline, by gate.",
}, []string{"gate"})

func init() {
	prometheus.MustRegister(authorizationDenials)
}

func observeDenial(gate string, _ error) {
	authorizationDenials.WithLabelValues(gate).Inc()
}

// requireFunc returns the middleware protecting an operation that requires set.
type requireFunc func(set tenancy.CapabilitySet) echo.MiddlewareFunc

// requires runs the authorization pipeline and stores the fresh RequestContext in both the echo
// context and the request's context.Context. Runs after the JWT middleware.
func (s *Server) requires(set tenancy.CapabilitySet) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			rc, err := s.authorizer.Authorize(req.Context(), getContextPrincipal(ctx), set)
			if err != nil {
				return err
			}
			ctx.Set(contextRequestKey, rc)
			ctx.SetRequest(req.WithContext(tenancy.WithRequest(req.Context(), rc)))
			return next(ctx)
		}
	}
}

// identified runs the authentication and freshness gates only, for routes that accounts without
// a tenant may use. Runs after the JWT middleware.
func (s *Server) identified(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := s.authorizer.Identify(ctx.Request().Context(), getContextPrincipal(ctx)); err != nil {
			return err
		}
		return next(ctx)
	}
}

const (
	visitorIdleTTL     = 3 * time.Minute
	visitorSweepPeriod = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// signInLimiter allows r sign-in attempts per second per client IP, with bursts of burst.
// Clients idle for longer than idleTTL are forgotten by sweep.
type signInLimiter struct {
	r       rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time // mockable

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newSignInLimiter(r float64, burst int, idleTTL time.Duration) *signInLimiter {
	if burst < 1 {
		burst = 1
	}
	return &signInLimiter{
		r:        rate.Limit(r),
		burst:    burst,
		idleTTL:  idleTTL,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *signInLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.r, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep forgets idle clients and returns how many are still tracked.
func (l *signInLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.visitors, ip)
		}
	}
	return len(l.visitors)
}

// sweepEvery sweeps every period until done is closed.
func (l *signInLimiter) sweepEvery(period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-done:
			return
		}
	}
}

// middleware refuses requests over the limit. A non-positive rate disables limiting.
func (l *signInLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if l.r <= 0 {
			return next(ctx)
		}
		if !l.allow(ctx.RealIP()) {
			return errTooManyRequests
		}
		return next(ctx)
	}
}
