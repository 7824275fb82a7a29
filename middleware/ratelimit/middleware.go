package ratelimit

import (
	"net/http"
	"time"

	"account-gateway/middleware/ratelimit/domain"
	"account-gateway/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

const (
	HeaderPolicy       = "X-Rate-Limit-Policy"
	HeaderRules        = "X-Rate-Limit-Rules"
	HeaderAccount      = "X-Rate-Limit-Account"
	HeaderAccountState = "X-Rate-Limit-Account-State"
	HeaderRetryAfter   = "Retry-After"
)

// Evaluator é o contrato do engine visto pelo adapter HTTP.
type Evaluator interface {
	Evaluate(key domain.Key, now time.Time) domain.AdmissionResult
}

type Options struct {
	Engine       Evaluator
	Stats        domain.StatsStore
	CredentialFn CredentialFunc
	EndpointFn   EndpointFunc
	// Clock é a fonte de "now" passada ao engine. Padrão: time.Now.
	Clock        func() time.Time
	Logger       *zap.Logger
	RejectStatus int
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Engine == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.CredentialFn == nil {
		opts.CredentialFn = BearerCredential
	}
	if opts.EndpointFn == nil {
		opts.EndpointFn = PathEndpoint
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := opts.CredentialFn(r)
			if cred == "" {
				writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			key := domain.Key{Credential: cred, Endpoint: opts.EndpointFn(r)}
			now := opts.Clock()

			res := opts.Engine.Evaluate(key, now)
			setAdmissionHeaders(w.Header(), res.Headers)

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: res.Admitted,
					Reason:  res.Reason,
					Route:   RoutePattern(r),
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				})
				if err != nil {
					log.Warn("rate limit stats record failed", zap.Error(err))
				}
			}

			fields := []zap.Field{
				zap.String("credential", infra.Fingerprint(cred)),
				zap.String("endpoint", key.Endpoint),
				zap.String("state", res.Headers.AccountState),
			}
			if !res.Admitted {
				log.Info("rate limited",
					append(fields,
						zap.Stringer("reason", res.Reason),
						zap.Int("retry_after", res.Headers.RetryAfter),
					)...,
				)
				writeJSONError(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}

			log.Debug("request admitted", fields...)
			next.ServeHTTP(w, r)
		})
	}
}

func setAdmissionHeaders(h http.Header, hd domain.Headers) {
	h.Set(HeaderPolicy, hd.Policy)
	h.Set(HeaderRules, hd.Rules)
	h.Set(HeaderAccount, hd.Account)
	h.Set(HeaderAccountState, hd.AccountState)
	if hd.RetryAfter > 0 {
		h.Set(HeaderRetryAfter, formatInt(hd.RetryAfter))
	}
}
