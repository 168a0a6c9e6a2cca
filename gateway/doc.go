// Package gateway é o adaptador HTTP do gateway.
//
// Fluxo do Dispatcher por requisição:
//
//	Received -> Matching -> RateChecking -> Forwarding -> Completed
//
// Saídas antecipadas viram o envelope de erro: 404 (sem rota), 429 (limite)
// e 504 (timeout ou backend inacessível). CORS e SecureHeaders ficam por fora
// de tudo no listener principal. O AdminRouter expõe /health e
// /stats em um listener separado.
package gateway
