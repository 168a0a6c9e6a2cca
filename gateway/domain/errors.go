package domain

import "errors"

// Taxonomia de falhas por requisição. Nenhuma é refeita automaticamente.
var (
	ErrNotFound           = errors.New("no route matches")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrTimeout            = errors.New("backend timed out")
	ErrBackendUnreachable = errors.New("backend unreachable")
	ErrUnavailable        = errors.New("gateway saturated")
)

// StatusFor mapeia um erro da taxonomia para o código HTTP do envelope.
// Erros desconhecidos viram 504: a falha aconteceu depois da admissão.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrRateLimited):
		return 429
	case errors.Is(err, ErrUnavailable):
		return 503
	default:
		return 504
	}
}
