// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: tabela de estado por chave particionada (xxhash) com janitor
//   - history: histórico de timestamps sobre github.com/gammazero/deque
//   - IngressLimiter: token bucket global usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - *StatsStore: estatísticas em memória, Redis e Prometheus
package infra
