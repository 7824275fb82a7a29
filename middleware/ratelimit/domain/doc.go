// Package domain define contratos e tipos de domínio do rate limit por conta:
// chave (credencial + endpoint), tiers, política, estado por chave e o
// resultado de admissão.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
