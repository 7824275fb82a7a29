package server

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"account-gateway/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewAPIRouter monta a API de exemplo: GET /{endpoint} protegido pelo stack,
// respondendo {"message": "Request successful"} depois de delay.
//
// /healthz, métricas e stats em memória ficam fora do rate limit.
func NewAPIRouter(stack *Stack, delay time.Duration) http.Handler {
	r := stack.baseRouter()
	r.Group(func(r chi.Router) {
		r.Use(stack.Middlewares(ratelimit.ChiParamEndpoint("endpoint"))...)
		r.Get("/{endpoint}", successHandler(delay))
	})
	return r
}

// NewProxyRouter encaminha qualquer path para target depois do stack.
func NewProxyRouter(stack *Stack, target *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)
	log := stack.log.Named("proxy")
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Bad Gateway"})
	}

	r := stack.baseRouter()
	r.Group(func(r chi.Router) {
		r.Use(stack.Middlewares(ratelimit.PathEndpoint)...)
		r.Handle("/*", proxy)
	})
	return r
}

func (s *Stack) baseRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Registry != nil {
		r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}
	if s.Memory != nil {
		r.Get(s.cfg.Stats.Path, func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.Memory.Snapshot())
		})
	}
	return r
}

func successHandler(delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// a latência simulada roda depois da decisão, fora do lock da chave
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-r.Context().Done():
				return
			case <-t.C:
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Request successful"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
