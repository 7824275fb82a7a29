// Package ratelimit fornece adapters HTTP (net/http) para o rate limit por conta,
// o limite global de ingresso e o limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: Engine (decisão por tier/teto por segundo) e acquire/timeout
//   - infra: tabela de estado particionada, histórico, token bucket, semáforo, stats
//   - ratelimit (este pacote): middlewares HTTP + extração de credencial/endpoint
//     + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a credencial (Authorization: Bearer) e o endpoint; sem credencial, 401
//  2. Chama Engine.Evaluate(key, now)
//  3. Escreve X-Rate-Limit-Policy, X-Rate-Limit-Rules, X-Rate-Limit-Account,
//     X-Rate-Limit-Account-State e, quando houver penalidade, Retry-After
//  4. Se negado, responde 429; se admitido, chama o próximo handler
//
// Variáveis de ambiente dos binários (cmd/gateway, cmd/example-server)
// controlam o comportamento; veja internal/config.
package ratelimit
