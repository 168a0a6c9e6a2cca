// Package domain define os tipos do gateway: ligação rota -> backend, a tabela
// de rotas (contrato), a taxonomia de erros e a máquina de estados de cada
// requisição.
//
// Assim como middleware/ratelimit/domain, não depende de net/http.
package domain
