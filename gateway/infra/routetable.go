package infra

import (
	"fmt"
	"sort"

	"api-gateway/gateway/domain"
)

// RouteTable é montada uma vez na inicialização e só lida depois; não precisa de lock.
//
// Prefixos sobrepostos (/users e /users/admin) são permitidos: vence o mais longo.
type RouteTable struct {
	// ordenados do prefixo mais longo para o mais curto
	byLength []domain.RouteBinding
	// ordem de registro, para exibição
	ordered []domain.RouteBinding
}

var _ domain.RouteTable = (*RouteTable)(nil)

func NewRouteTable(bindings []domain.RouteBinding) (*RouteTable, error) {
	seen := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if b.Target == nil {
			return nil, fmt.Errorf("route %q: missing target", b.Prefix)
		}
		if _, dup := seen[b.Prefix]; dup {
			return nil, fmt.Errorf("route %q configured more than once", b.Prefix)
		}
		seen[b.Prefix] = struct{}{}
	}

	ordered := make([]domain.RouteBinding, len(bindings))
	copy(ordered, bindings)

	byLength := make([]domain.RouteBinding, len(bindings))
	copy(byLength, bindings)
	sort.SliceStable(byLength, func(i, j int) bool {
		return len(byLength[i].Prefix) > len(byLength[j].Prefix)
	})

	return &RouteTable{byLength: byLength, ordered: ordered}, nil
}

// Resolve devolve a rota de prefixo mais longo que casa com path.
func (t *RouteTable) Resolve(path string) (domain.RouteBinding, bool) {
	for _, b := range t.byLength {
		if b.Matches(path) {
			return b, true
		}
	}
	return domain.RouteBinding{}, false
}

func (t *RouteTable) Bindings() []domain.RouteBinding {
	out := make([]domain.RouteBinding, len(t.ordered))
	copy(out, t.ordered)
	return out
}
