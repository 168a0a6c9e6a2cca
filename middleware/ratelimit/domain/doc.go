// Package domain define contratos e tipos de domínio para rate limit, concorrência
// e estatísticas do gateway.
//
// Este pacote não depende de net/http nem de implementações concretas.
// A chave de rate limit é composta (endereço do cliente, prefixo da rota).
package domain
