// Package application decide a admissão de uma requisição no gateway:
// resolve a rota e consulta o rate limit por (cliente, rota), avançando a
// máquina de estados da requisição. Não conhece net/http.
package application
