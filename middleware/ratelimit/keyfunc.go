package ratelimit

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// CredentialFunc extrai a credencial opaca do request. "" significa ausente.
type CredentialFunc func(r *http.Request) string

// EndpointFunc extrai o identificador de endpoint do request.
type EndpointFunc func(r *http.Request) string

// BearerCredential lê Authorization e remove o prefixo "Bearer ".
// O esquema sozinho ("Bearer", sem token) conta como credencial ausente.
func BearerCredential(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.EqualFold(v, "bearer") {
		return ""
	}
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		v = v[7:]
	}
	return strings.TrimSpace(v)
}

// HeaderCredential usa o valor de um header arbitrário (ex: X-Api-Key).
func HeaderCredential(header string) CredentialFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(header))
	}
}

// PathEndpoint usa o path limpo do request ("/x", "/a/b").
func PathEndpoint(r *http.Request) string {
	p := r.URL.Path
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// ChiParamEndpoint usa um parâmetro de rota do chi; precisa rodar depois do
// roteamento (ex: r.With(mw).Get("/{endpoint}", h)). Sem o parâmetro, cai
// para PathEndpoint.
func ChiParamEndpoint(name string) EndpointFunc {
	return func(r *http.Request) string {
		if v := chi.URLParam(r, name); v != "" {
			return "/" + v
		}
		return PathEndpoint(r)
	}
}

// RoutePattern devolve o padrão de rota do chi ("/{endpoint}", "/*"), que tem
// cardinalidade fixa, ao contrário do path. Fora do chi devolve "".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
