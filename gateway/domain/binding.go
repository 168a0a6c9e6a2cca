package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteBinding liga um prefixo de rota a um backend. Imutável depois de criado.
type RouteBinding struct {
	Prefix string
	Target *url.URL

	// PreserveBasePath junta o path do Target com o path reescrito
	// (ex.: /users/42 -> http://host/users/42). Por padrão o path reescrito
	// substitui o do Target (/users/42 -> http://host/42).
	PreserveBasePath bool
}

// NewRouteBinding valida e normaliza prefixo e alvo.
// O prefixo precisa começar com "/"; barra final é removida (exceto em "/").
func NewRouteBinding(prefix, target string, preserveBasePath bool) (RouteBinding, error) {
	p, err := NormalizePrefix(prefix)
	if err != nil {
		return RouteBinding{}, err
	}

	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return RouteBinding{}, fmt.Errorf("route %q: invalid target: %w", p, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return RouteBinding{}, fmt.Errorf("route %q: target scheme must be http or https, got %q", p, u.Scheme)
	}
	if u.Host == "" {
		return RouteBinding{}, fmt.Errorf("route %q: target must include a host", p)
	}
	u.RawQuery = ""
	u.Fragment = ""

	return RouteBinding{Prefix: p, Target: u, PreserveBasePath: preserveBasePath}, nil
}

func NormalizePrefix(prefix string) (string, error) {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return "", fmt.Errorf("route prefix must not be empty")
	}
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("route prefix %q must start with /", p)
	}
	if p != "/" {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p, nil
}

// Matches diz se path pertence à rota: igual ao prefixo ou prefixo + "/...".
// O prefixo "/" casa com qualquer path.
func (b RouteBinding) Matches(path string) bool {
	if b.Prefix == "/" {
		return true
	}
	return path == b.Prefix || strings.HasPrefix(path, b.Prefix+"/")
}

// StripPrefix remove o prefixo do path; resto vazio vira "/".
func (b RouteBinding) StripPrefix(path string) string {
	if b.Prefix == "/" {
		if path == "" {
			return "/"
		}
		return path
	}
	rest := strings.TrimPrefix(path, b.Prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// RouteTable resolve o path de entrada para uma rota configurada.
type RouteTable interface {
	Resolve(path string) (RouteBinding, bool)
	Bindings() []RouteBinding
}
