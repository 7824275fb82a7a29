package ratelimit

import (
	"net/http"
	"time"

	"account-gateway/middleware/ratelimit/domain"
)

type IngressOptions struct {
	Limiter      domain.Limiter
	RejectStatus int
}

type retryHinter interface {
	RetryAfter() time.Duration
}

// IngressMiddleware aplica um limite global do processo antes do limite por
// conta. Requests barrados aqui não tocam o estado das chaves.
func IngressMiddleware(opts IngressOptions) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opts.Limiter.Allow() {
				if h, ok := opts.Limiter.(retryHinter); ok {
					if s := retrySeconds(h.RetryAfter()); s > 0 {
						w.Header().Set(HeaderRetryAfter, formatInt(s))
					}
				}
				writeJSONError(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
